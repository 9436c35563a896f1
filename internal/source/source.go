// Package source provides the frame sources the scanner reads from.
package source

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/streetpass/internal/config"
)

// Source yields captured frames. ReadPacketData returns io.EOF when a finite
// source is exhausted and core.ErrCaptureTimeout when a live source saw
// nothing within its poll timeout.
type Source interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close() error
}

// Injector transmits raw frames.
type Injector interface {
	WritePacketData(data []byte) error
}

// Open returns the source selected by cfg.Type.
func Open(cfg config.CaptureConfig) (Source, error) {
	switch cfg.Type {
	case "file":
		s, err := OpenFile(cfg.File)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "afpacket":
		s, err := OpenAFPacket(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown capture type %q", cfg.Type)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
