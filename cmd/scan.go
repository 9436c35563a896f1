package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/daemon"
	logpkg "firestige.xyz/streetpass/internal/log"
)

// scanCmd runs a scan session in the foreground.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for peers whose module filter matches the local one",
	Long: `Capture probe requests, decode the module filters they carry and report
every peer that matches the local filter.

The session ends when the capture file is exhausted, --duration elapses or
SIGINT/SIGTERM arrives. SIGHUP reloads the log settings.

Examples:
  streetpass scan -c /etc/streetpass/config.yml
  streetpass scan --file capture.pcapng --duration 0
  streetpass scan --interface wlan0mon --duration 10m`,
	Run: func(cmd *cobra.Command, args []string) {
		scanOpts.durationSet = cmd.Flags().Changed("duration")
		cfg, err := loadScanConfig(configFile, scanOpts)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := runScan(cmd.Context(), cfg, configFile, scanOpts.pidFile, cmd.OutOrStdout()); err != nil {
			exitWithError("scan failed", err)
		}
	},
}

type scanOptions struct {
	iface    string
	file     string
	duration time.Duration
	pidFile  string

	durationSet bool // --duration given, 0 included
}

var scanOpts scanOptions

func init() {
	scanCmd.Flags().StringVarP(&scanOpts.iface, "interface", "i", "", "capture from this monitor interface (overrides capture.interface)")
	scanCmd.Flags().StringVarP(&scanOpts.file, "file", "f", "", "read frames from a pcap/pcapng file (overrides capture.type)")
	scanCmd.Flags().DurationVarP(&scanOpts.duration, "duration", "d", 0, "stop after this long (overrides scan.duration)")
	scanCmd.Flags().StringVarP(&scanOpts.pidFile, "pidfile", "p", "", "PID file path")
}

// loadScanConfig reads the config file, applies command line overrides and
// validates the result.
func loadScanConfig(path string, opts scanOptions) (*config.GlobalConfig, error) {
	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}
	switch {
	case opts.file != "":
		cfg.Capture.Type, cfg.Capture.File = "file", opts.file
	case opts.iface != "":
		cfg.Capture.Type, cfg.Capture.Interface = "afpacket", opts.iface
	}
	if opts.durationSet {
		cfg.Scan.Duration = opts.duration
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func runScan(ctx context.Context, cfg *config.GlobalConfig, configPath, pidFile string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := logpkg.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	d := daemon.New(cfg, configPath, pidFile)
	if err := d.Start(ctx); err != nil {
		return err
	}
	if err := d.Run(ctx); err != nil {
		return err
	}

	st := d.Stats()
	fmt.Fprintf(out, "frames=%d probes=%d rejected=%d payloads=%d parse_errors=%d matches=%d duplicates=%d rate_limited=%d handler_errors=%d\n",
		st.Frames, st.Probes, st.Rejected, st.Payloads, st.ParseErrors, st.Matches, st.Duplicates, st.RateLimited, st.HandlerErrors)
	return nil
}
