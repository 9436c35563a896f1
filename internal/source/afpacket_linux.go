//go:build linux && cgo

package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/core"
)

// AFPacketSource captures from a monitor-mode interface through a
// TPACKET_V3 ring. Monitor interfaces deliver radiotap framed 802.11.
type AFPacketSource struct {
	handle *afpacket.TPacket
	iface  string
}

// OpenAFPacket opens a capture ring on cfg.Interface and, when
// cfg.ProbeFilter is set, attaches the probe request BPF program.
func OpenAFPacket(cfg config.CaptureConfig) (*AFPacketSource, error) {
	frameSize, blockSize, numBlocks, err := recomputeSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("open af_packet on %s: %w", cfg.Interface, err)
	}

	if cfg.ProbeFilter {
		raw, err := assembleProbeFilter(cfg.SnapLen)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(raw); err != nil {
			tp.Close()
			return nil, fmt.Errorf("attach probe request filter on %s: %w", cfg.Interface, err)
		}
	}

	slog.Debug("af_packet source opened", "iface", cfg.Interface,
		"frame_size", frameSize, "block_size", blockSize, "blocks", numBlocks)
	return &AFPacketSource{handle: tp, iface: cfg.Interface}, nil
}

// ReadPacketData returns a copy of the next frame.
func (s *AFPacketSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, ci, core.ErrCaptureTimeout
	}
	return data, ci, err
}

// WritePacketData injects a radiotap framed frame.
func (s *AFPacketSource) WritePacketData(data []byte) error {
	return s.handle.WritePacketData(data)
}

// LinkType is always radiotap for monitor interfaces.
func (s *AFPacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeIEEE80211Radio
}

// Stats returns the kernel packet and drop counters.
func (s *AFPacketSource) Stats() (packets, drops uint, err error) {
	_, v3, err := s.handle.SocketStats()
	if err != nil {
		return 0, 0, err
	}
	return v3.Packets(), v3.Drops(), nil
}

// Close releases the ring.
func (s *AFPacketSource) Close() error {
	s.handle.Close()
	return nil
}

// OpenInjector opens a transmit-only socket on iface.
func OpenInjector(iface string) (Injector, io.Closer, error) {
	tp, err := afpacket.NewTPacket(afpacket.OptInterface(iface), afpacket.SocketRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("open injector on %s: %w", iface, err)
	}
	return tp, closerFunc(func() error { tp.Close(); return nil }), nil
}
