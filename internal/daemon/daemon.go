// Package daemon wires configuration into a running scan session and owns
// its lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/streetpass/internal/beacon"
	"firestige.xyz/streetpass/internal/ccmp"
	"firestige.xyz/streetpass/internal/cec"
	"firestige.xyz/streetpass/internal/command"
	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/dot11"
	"firestige.xyz/streetpass/internal/history"
	logpkg "firestige.xyz/streetpass/internal/log"
	"firestige.xyz/streetpass/internal/metrics"
	"firestige.xyz/streetpass/internal/radio"
	"firestige.xyz/streetpass/internal/scan"
	"firestige.xyz/streetpass/internal/source"
	"firestige.xyz/streetpass/pkg/plugin"
)

// Daemon runs one scan session: capture, match, report, optionally beacon.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string // empty disables SIGHUP reload
	pidFile    string

	// Core components
	local         *cec.ModuleFilter
	localMAC      net.HardwareAddr
	src           source.Source
	scanner       *scan.Scanner
	beacon        *beacon.Beacon // nil if beacon disabled
	injector      io.Closer      // nil if beacon disabled
	store         *history.Store // nil if history disabled
	reporters     []plugin.Reporter
	wrappers      []*scan.ReporterWrapper
	metricsServer *metrics.Server               // nil if metrics disabled
	control       *command.UDSServer            // nil if control.socket is empty
	consumer      *command.KafkaCommandConsumer // nil if control.kafka disabled

	mu       sync.Mutex
	shutdown context.CancelFunc // set while Run is active

	// Overridable for tests
	openSource   func(config.CaptureConfig) (source.Source, error)
	openInjector func(iface string) (source.Injector, io.Closer, error)
	resolveMAC   func(configured, iface string) (net.HardwareAddr, error)

	stopOnce sync.Once
}

// New creates a daemon for an already loaded configuration.
func New(cfg *config.GlobalConfig, configPath, pidFile string) *Daemon {
	return &Daemon{
		config:       cfg,
		configPath:   configPath,
		pidFile:      pidFile,
		openSource:   source.Open,
		openInjector: source.OpenInjector,
		resolveMAC:   radio.ResolveMAC,
	}
}

// Start builds every component. On failure everything already started is
// torn down again.
func (d *Daemon) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			d.Stop()
		}
	}()

	slog.Info("starting streetpass scanner",
		"capture", d.config.Capture.Type,
		"interface", d.config.Capture.Interface,
		"file", d.config.Capture.File,
	)

	// 1. PID file
	if err := d.writePIDFile(); err != nil {
		return err
	}

	// 2. Metrics
	if err := d.startMetrics(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 3. Local identity and filter
	d.local, err = d.config.Filter.ModuleFilter(d.config.Device.Key)
	if err != nil {
		return fmt.Errorf("build local module filter: %w", err)
	}
	if d.config.Beacon.Enabled || d.config.Crypto.Enabled() || d.config.Device.MAC != "" {
		iface := d.config.Beacon.Interface
		if iface == "" {
			iface = d.config.Capture.Interface
		}
		if d.localMAC, err = d.resolveMAC(d.config.Device.MAC, iface); err != nil {
			return fmt.Errorf("resolve device mac: %w", err)
		}
	}
	slog.Info("local module filter", "key", d.local.Key(), "mac", d.localMAC, "size", d.local.ByteSize())

	// 4. Session key derivation
	var deriver *ccmp.Deriver
	if d.config.Crypto.Enabled() {
		deriver, err = ccmp.LoadKeys(d.config.Crypto.NormalKeyFile, d.config.Crypto.CECDKeyFile)
		if err != nil {
			return err
		}
	}

	// 5. Encounter handlers: history first, then reporters
	var handlers scan.Handlers
	if d.config.History.Enabled {
		d.store, err = history.Open(d.config.History.Path)
		if err != nil {
			return err
		}
		handlers = append(handlers, scan.Named("history", d.store))
	}
	for _, rc := range d.config.Reporters {
		r, err := plugin.NewReporter(rc.Name, rc.Config)
		if err != nil {
			return err
		}
		if err := r.Start(ctx); err != nil {
			return fmt.Errorf("start reporter %s: %w", rc.Name, err)
		}
		d.reporters = append(d.reporters, r)
		w := scan.NewReporterWrapper(r, 0)
		w.Start(ctx)
		d.wrappers = append(d.wrappers, w)
		handlers = append(handlers, scan.Named(rc.Name, w))
	}

	// 6. Scanner
	oui, err := dot11.ParseVendorOUI(d.config.Scan.VendorOUI)
	if err != nil {
		return err
	}
	d.scanner, err = scan.New(scan.Config{
		Local:       d.local,
		LocalMAC:    d.localMAC,
		OUI:         oui,
		VerifyFCS:   d.config.Scan.VerifyFCS,
		KeepFrames:  d.config.Scan.KeepFrames,
		DedupWindow: d.config.Scan.DedupWindow,
		RateLimit: scan.RateLimiterConfig{
			MaxFramesPerSource: d.config.Scan.MaxFramesPerSource,
			Window:             d.config.Scan.RateLimitWindow,
		},
		Deriver:    deriver,
		Handler:    handlers,
		SourceName: d.config.Capture.Type,
	})
	if err != nil {
		return err
	}

	// 7. Beacon
	if d.config.Beacon.Enabled {
		inj, closer, err := d.openInjector(d.config.Beacon.Interface)
		if err != nil {
			return err
		}
		d.injector = closer
		d.beacon, err = beacon.New(beacon.Config{
			Interface: d.config.Beacon.Interface,
			Source:    d.localMAC,
			SSID:      d.config.Beacon.SSID,
			OUI:       oui,
			Interval:  d.config.Beacon.Interval,
			Filter:    d.local,
		}, inj)
		if err != nil {
			return err
		}
	}

	// 8. Command channels
	if err := d.startControl(); err != nil {
		return err
	}

	// 9. Capture source last so nothing is dropped while wiring
	d.src, err = d.openSource(d.config.Capture)
	if err != nil {
		return err
	}
	return nil
}

// Run scans until the source is exhausted, scan.duration elapses, ctx is
// cancelled or SIGINT/SIGTERM arrives. SIGHUP reloads logging settings.
// Everything is stopped before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.Stop()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if d.config.Scan.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, d.config.Scan.Duration)
		defer stop()
	}
	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()
	d.mu.Lock()
	d.shutdown = shutdown
	d.mu.Unlock()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	if d.beacon != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.beacon.Run(ctx)
		}()
	}
	if d.control != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.control.Serve(ctx); err != nil {
				slog.Error("control socket failed", "error", err)
			}
		}()
	}
	if d.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.consumer.Run(ctx)
		}()
	}

	err := d.scanner.Run(ctx, d.src)
	cancel()
	wg.Wait()
	return err
}

// Reload re-reads the configuration file and applies the log settings.
// Everything else requires a restart.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return errors.New("no config file to reload")
	}
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return err
	}
	if err := logpkg.Init(cfg.Log); err != nil {
		return err
	}
	d.config.Log = cfg.Log
	slog.Info("configuration reloaded", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	return nil
}

// Shutdown ends a running Run as if its context had been cancelled.
// It is a no-op when Run is not active.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	shutdown := d.shutdown
	d.mu.Unlock()
	if shutdown != nil {
		shutdown()
	}
}

// SessionID identifies the scan session in encounters and metrics.
func (d *Daemon) SessionID() string {
	if d.scanner == nil {
		return ""
	}
	return d.scanner.SessionID()
}

// LocalFilter returns the module filter matched against.
func (d *Daemon) LocalFilter() *cec.ModuleFilter { return d.local }

// Stats returns the scanner counters.
func (d *Daemon) Stats() scan.Stats {
	if d.scanner == nil {
		return scan.Stats{}
	}
	return d.scanner.Stats()
}

// Stop releases every component in reverse start order. It is idempotent.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.control != nil {
		d.control.Stop()
	}
	if d.consumer != nil {
		if err := d.consumer.Stop(); err != nil {
			slog.Error("error stopping command consumer", "error", err)
		}
	}
	if d.src != nil {
		if err := d.src.Close(); err != nil {
			slog.Error("error closing capture source", "error", err)
		}
	}
	if d.injector != nil {
		if err := d.injector.Close(); err != nil {
			slog.Error("error closing injector", "error", err)
		}
	}
	for i, w := range d.wrappers {
		if err := w.Close(ctx); err != nil {
			slog.Error("error flushing reporter", "reporter", d.reporters[i].Name(), "error", err)
		}
	}
	for _, r := range d.reporters {
		if err := r.Stop(ctx); err != nil {
			slog.Error("error stopping reporter", "reporter", r.Name(), "error", err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Error("error closing history", "error", err)
		}
	}
	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(ctx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}
	slog.Info("scanner stopped", "stats", d.Stats())
}

func (d *Daemon) startControl() error {
	cc := d.config.Control
	if cc.Socket == "" && !cc.Kafka.Enabled {
		return nil
	}
	var peers command.PeerStore
	if d.store != nil {
		peers = d.store
	}
	handler := command.NewCommandHandler(d, peers)

	if cc.Socket != "" {
		d.control = command.NewUDSServer(cc.Socket, handler)
		if err := d.control.Listen(); err != nil {
			d.control = nil
			return err
		}
	}
	if cc.Kafka.Enabled {
		hostname, _ := os.Hostname()
		consumer, err := command.NewKafkaCommandConsumer(cc.Kafka, cc.CommandTTL,
			[]string{hostname, d.config.Device.Key.String()}, handler)
		if err != nil {
			return fmt.Errorf("kafka command channel: %w", err)
		}
		d.consumer = consumer
	}
	return nil
}

func (d *Daemon) startMetrics(ctx context.Context) error {
	if !d.config.Metrics.Enabled {
		slog.Debug("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(ctx); err != nil {
		d.metricsServer = nil
		return err
	}
	slog.Info("metrics server started", "addr", d.metricsServer.Addr(), "path", d.config.Metrics.Path)
	return nil
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
