// Package pcap implements a reporter that appends matched frames to a
// capture file so they can be opened in Wireshark.
package pcap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/mitchellh/mapstructure"

	"firestige.xyz/streetpass/internal/core"
	"firestige.xyz/streetpass/pkg/plugin"
)

const defaultSnapLen = 65535

// Config represents pcap reporter configuration.
type Config struct {
	Path    string `mapstructure:"path"`     // required
	Format  string `mapstructure:"format"`   // pcap|pcapng, default pcap
	SnapLen uint32 `mapstructure:"snap_len"` // default 65535
}

// frameWriter is satisfied by *pcapgo.Writer and *pcapgo.NgWriter.
type frameWriter interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

// PcapReporter writes the raw frame of every encounter.
type PcapReporter struct {
	name   string
	config Config

	mu       sync.Mutex
	file     *os.File
	buf      *bufio.Writer
	writer   frameWriter
	ngWriter *pcapgo.NgWriter
	linkType layers.LinkType

	written atomic.Uint64
	skipped atomic.Uint64
}

// NewPcapReporter creates a pcap reporter.
func NewPcapReporter() plugin.Reporter {
	return &PcapReporter{name: "pcap"}
}

// Name returns the plugin name.
func (r *PcapReporter) Name() string {
	return r.name
}

// Init parses the configuration.
func (r *PcapReporter) Init(config map[string]any) error {
	cfg := Config{Format: "pcap", SnapLen: defaultSnapLen}
	if err := mapstructure.WeakDecode(config, &cfg); err != nil {
		return fmt.Errorf("invalid pcap config: %w", err)
	}
	if cfg.Path == "" {
		return errors.New("path is required")
	}
	if cfg.Format != "pcap" && cfg.Format != "pcapng" {
		return fmt.Errorf("invalid format %q, must be pcap or pcapng", cfg.Format)
	}
	if cfg.SnapLen == 0 {
		cfg.SnapLen = defaultSnapLen
	}
	r.config = cfg
	return nil
}

// Start creates the output file. The file header is written with the first
// frame, once its link type is known.
func (r *PcapReporter) Start(ctx context.Context) error {
	f, err := os.Create(r.config.Path)
	if err != nil {
		return fmt.Errorf("create %s: %w", r.config.Path, err)
	}
	r.mu.Lock()
	r.file = f
	r.buf = bufio.NewWriter(f)
	r.mu.Unlock()
	slog.Info("pcap reporter started", "path", r.config.Path, "format", r.config.Format)
	return nil
}

// Stop flushes and closes the file.
func (r *PcapReporter) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.flushLocked()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.file = nil
	slog.Info("pcap reporter stopped", "written", r.written.Load(), "skipped", r.skipped.Load())
	return err
}

// Report writes enc.Frame. Encounters without a frame are skipped.
func (r *PcapReporter) Report(ctx context.Context, enc *core.Encounter) error {
	if enc == nil {
		return errors.New("nil encounter")
	}
	if len(enc.Frame) == 0 {
		r.skipped.Add(1)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return errors.New("pcap reporter not started")
	}

	link := layers.LinkType(enc.LinkType)
	if r.writer == nil {
		if err := r.openWriterLocked(link); err != nil {
			return err
		}
	} else if link != r.linkType {
		return fmt.Errorf("link type %s does not match file link type %s", link, r.linkType)
	}

	data := enc.Frame
	if uint32(len(data)) > r.config.SnapLen {
		data = data[:r.config.SnapLen]
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     enc.Timestamp,
		CaptureLength: len(data),
		Length:        len(enc.Frame),
	}
	if err := r.writer.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	r.written.Add(1)
	return nil
}

func (r *PcapReporter) openWriterLocked(link layers.LinkType) error {
	switch r.config.Format {
	case "pcapng":
		w, err := pcapgo.NewNgWriter(r.buf, link)
		if err != nil {
			return fmt.Errorf("write pcapng header: %w", err)
		}
		r.writer, r.ngWriter = w, w
	default:
		w := pcapgo.NewWriter(r.buf)
		if err := w.WriteFileHeader(r.config.SnapLen, link); err != nil {
			return fmt.Errorf("write pcap header: %w", err)
		}
		r.writer = w
	}
	r.linkType = link
	return nil
}

// Flush pushes buffered frames to disk.
func (r *PcapReporter) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.flushLocked()
}

func (r *PcapReporter) flushLocked() error {
	if r.ngWriter != nil {
		if err := r.ngWriter.Flush(); err != nil {
			return err
		}
	}
	return r.buf.Flush()
}
