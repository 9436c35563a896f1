// Package beacon periodically broadcasts the local module filter in probe
// requests so that scanning peers can find this device.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"firestige.xyz/streetpass/internal/cec"
	"firestige.xyz/streetpass/internal/dot11"
	"firestige.xyz/streetpass/internal/metrics"
	"firestige.xyz/streetpass/internal/source"
)

// Config describes what to broadcast and how often.
type Config struct {
	Interface string // metric label only
	Source    net.HardwareAddr
	SSID      string
	OUI       dot11.VendorOUI
	Interval  time.Duration
	Filter    *cec.ModuleFilter
}

// Beacon writes probe requests through an injector.
type Beacon struct {
	cfg      Config
	injector source.Injector
	payload  []byte
	seq      uint16

	sent   atomic.Uint64
	failed atomic.Uint64
}

// New validates cfg and encodes the filter once.
func New(cfg Config, injector source.Injector) (*Beacon, error) {
	if injector == nil {
		return nil, errors.New("beacon: injector is required")
	}
	if cfg.Filter == nil {
		return nil, errors.New("beacon: module filter is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("beacon: interval must be positive, got %s", cfg.Interval)
	}
	if cfg.OUI == (dot11.VendorOUI{}) {
		cfg.OUI = dot11.DefaultVendorOUI
	}
	b := &Beacon{cfg: cfg, injector: injector, payload: cfg.Filter.Bytes()}
	// Fail early on filters or addresses that cannot be framed.
	if _, err := b.frame(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Beacon) frame() ([]byte, error) {
	return dot11.BuildProbeRequest(b.cfg.Source, b.cfg.SSID, b.cfg.OUI, b.payload, b.seq)
}

// SendOnce transmits one probe request.
func (b *Beacon) SendOnce() error {
	frame, err := b.frame()
	if err == nil {
		err = b.injector.WritePacketData(frame)
	}
	b.seq = (b.seq + 1) & 0x0FFF
	if err != nil {
		b.failed.Add(1)
		metrics.BeaconsSentTotal.WithLabelValues(b.cfg.Interface, "error").Inc()
		return fmt.Errorf("send probe request: %w", err)
	}
	b.sent.Add(1)
	metrics.BeaconsSentTotal.WithLabelValues(b.cfg.Interface, "ok").Inc()
	return nil
}

// Run sends immediately and then once per interval until ctx is done.
// Send failures are logged and do not stop the loop.
func (b *Beacon) Run(ctx context.Context) error {
	logger := slog.Default().With("component", "beacon", "interface", b.cfg.Interface)
	logger.Info("beacon started", "interval", b.cfg.Interval, "ssid", b.cfg.SSID, "filter_size", len(b.payload))

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := b.SendOnce(); err != nil {
			logger.Warn("beacon send failed", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("beacon stopped", "sent", b.Sent(), "failed", b.Failed())
			return nil
		case <-ticker.C:
		}
	}
}

// Sent returns the number of probe requests written.
func (b *Beacon) Sent() uint64 { return b.sent.Load() }

// Failed returns the number of failed writes.
func (b *Beacon) Failed() uint64 { return b.failed.Load() }
