// Package console implements the console reporter.
// Prints encounters in human-readable or JSON form for debugging.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"firestige.xyz/streetpass/internal/core"
	"firestige.xyz/streetpass/pkg/plugin"
)

// ConsoleReporter prints encounters.
type ConsoleReporter struct {
	name          string
	format        string // "json" or "text"
	mu            sync.Mutex
	out           io.Writer
	reportedCount atomic.Uint64
}

// NewConsoleReporter creates a console reporter writing to stdout.
func NewConsoleReporter() plugin.Reporter {
	return &ConsoleReporter{
		name:   "console",
		format: "text",
		out:    os.Stdout,
	}
}

// Name returns the plugin name.
func (r *ConsoleReporter) Name() string {
	return r.name
}

// Init reads the optional "format" key.
func (r *ConsoleReporter) Init(config map[string]any) error {
	if config == nil {
		return nil
	}
	if format, ok := config["format"].(string); ok {
		if format != "json" && format != "text" {
			return fmt.Errorf("invalid format %q, must be json or text", format)
		}
		r.format = format
	}
	return nil
}

// Start starts the reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	slog.Info("console reporter started", "format", r.format)
	return nil
}

// Stop stops the reporter.
func (r *ConsoleReporter) Stop(ctx context.Context) error {
	slog.Info("console reporter stopped", "total_reported", r.reportedCount.Load())
	return nil
}

// Report prints one encounter.
func (r *ConsoleReporter) Report(ctx context.Context, enc *core.Encounter) error {
	if enc == nil {
		return fmt.Errorf("nil encounter")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.format == "json" {
		err = r.reportJSON(enc)
	} else {
		err = r.reportText(enc)
	}
	if err == nil {
		r.reportedCount.Add(1)
	}
	return err
}

func (r *ConsoleReporter) reportJSON(enc *core.Encounter) error {
	view := *enc
	view.Frame = nil // raw frames belong in the pcap reporter
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}

func (r *ConsoleReporter) reportText(enc *core.Encounter) error {
	line := fmt.Sprintf("[%s] peer %s mac=%s", enc.Timestamp.Format("15:04:05.000"), enc.PeerKey, enc.PeerMAC)
	if enc.SSID != "" {
		line += fmt.Sprintf(" ssid=%q", enc.SSID)
	}
	if enc.Signal != 0 {
		line += fmt.Sprintf(" signal=%ddBm", enc.Signal)
	}
	line += fmt.Sprintf(" filter=%x", enc.Filter)
	if enc.SessionKey != "" {
		line += " session_key=" + enc.SessionKey
	}
	_, err := fmt.Fprintln(r.out, line)
	return err
}

// Flush is a no-op; every line is written as it is reported.
func (r *ConsoleReporter) Flush(ctx context.Context) error {
	return nil
}
