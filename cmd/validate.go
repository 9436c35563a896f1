package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/streetpass/internal/ccmp"
	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/pkg/plugin"
)

// validateCmd validates a config file without starting a scan.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file, build the local module filter and check that
every configured reporter exists and the key files are readable.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, cmd.OutOrStdout()); err != nil {
			exitWithError("invalid config", err)
		}
	},
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	local, err := cfg.Filter.ModuleFilter(cfg.Device.Key)
	if err != nil {
		return err
	}

	var errs []error
	for _, r := range cfg.Reporters {
		if _, err := plugin.GetReporterFactory(r.Name); err != nil {
			errs = append(errs, fmt.Errorf("reporter %q: %w (available: %s)", r.Name, err,
				strings.Join(plugin.ReporterNames(), ", ")))
		}
	}
	if cfg.Crypto.Enabled() {
		if _, err := ccmp.LoadKeys(cfg.Crypto.NormalKeyFile, cfg.Crypto.CECDKeyFile); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	fmt.Fprintf(w, "VALID: %s\n", path)
	fmt.Fprintf(w, "  key:       %s\n", cfg.Device.Key)
	fmt.Fprintf(w, "  filter:    %x (%d bytes)\n", local.Bytes(), local.ByteSize())
	fmt.Fprintf(w, "  raw bytes: %d filter(s), titles: %d filter(s)\n", local.RawBytes().Count(), local.Titles().Count())
	switch cfg.Capture.Type {
	case "file":
		fmt.Fprintf(w, "  capture:   file %s\n", cfg.Capture.File)
	default:
		fmt.Fprintf(w, "  capture:   %s on %s\n", cfg.Capture.Type, cfg.Capture.Interface)
	}
	if cfg.Beacon.Enabled {
		fmt.Fprintf(w, "  beacon:    every %s on %s\n", cfg.Beacon.Interval, cfg.Beacon.Interface)
	}
	if cfg.History.Enabled {
		fmt.Fprintf(w, "  history:   %s\n", cfg.History.Path)
	}
	names := make([]string, 0, len(cfg.Reporters))
	for _, r := range cfg.Reporters {
		names = append(names, r.Name)
	}
	if len(names) > 0 {
		fmt.Fprintf(w, "  reporters: %s\n", strings.Join(names, ", "))
	}
	return nil
}
