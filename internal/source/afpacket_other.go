//go:build !linux || !cgo

package source

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/core"
)

// AFPacketSource is unavailable on this platform.
type AFPacketSource struct{}

// OpenAFPacket always fails with core.ErrUnsupportedPlatform.
func OpenAFPacket(cfg config.CaptureConfig) (*AFPacketSource, error) {
	return nil, fmt.Errorf("%w: af_packet on %s", core.ErrUnsupportedPlatform, cfg.Interface)
}

func (s *AFPacketSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, core.ErrUnsupportedPlatform
}

func (s *AFPacketSource) WritePacketData([]byte) error { return core.ErrUnsupportedPlatform }

func (s *AFPacketSource) LinkType() layers.LinkType { return layers.LinkTypeIEEE80211Radio }

func (s *AFPacketSource) Close() error { return nil }

// OpenInjector always fails with core.ErrUnsupportedPlatform.
func OpenInjector(iface string) (Injector, io.Closer, error) {
	return nil, nil, fmt.Errorf("%w: injector on %s", core.ErrUnsupportedPlatform, iface)
}
