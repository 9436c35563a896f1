package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running scanner",
	Long: `Query a running scanner over its control socket.

Shows: version, uptime, session, local filter and the scan counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), newControlClient(), cmd.OutOrStdout())
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the configuration of a running scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReload(cmd.Context(), newControlClient(), cmd.OutOrStdout())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), newControlClient(), cmd.OutOrStdout())
	},
}

var matchCmd = &cobra.Command{
	Use:   "match <hex>",
	Short: "Ask a running scanner whether a module filter matches its local one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMatch(cmd.Context(), newControlClient(), args[0], cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, client ControlClient, out io.Writer) error {
	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("scanner is not running or socket is inaccessible: %w", err)
	}
	stats, err := client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to query stats: %w", err)
	}
	fmt.Fprintf(out, "version:  %s\n", st.Version)
	fmt.Fprintf(out, "uptime:   %s\n", time.Duration(st.UptimeSec)*time.Second)
	fmt.Fprintf(out, "session:  %s\n", st.SessionID)
	fmt.Fprintf(out, "key:      %s\n", st.Key)
	fmt.Fprintf(out, "filter:   %s\n", st.Filter)
	fmt.Fprintf(out, "history:  %t\n", st.History)
	fmt.Fprintf(out, "frames=%d probes=%d rejected=%d payloads=%d parse_errors=%d matches=%d duplicates=%d rate_limited=%d handler_errors=%d\n",
		stats.Frames, stats.Probes, stats.Rejected, stats.Payloads, stats.ParseErrors, stats.Matches, stats.Duplicates, stats.RateLimited, stats.HandlerErrors)
	return nil
}

func runReload(ctx context.Context, client ControlClient, out io.Writer) error {
	if err := client.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration reloaded successfully")
	return nil
}

func runStop(ctx context.Context, client ControlClient, out io.Writer) error {
	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	fmt.Fprintln(out, "✓ Scanner is shutting down")
	return nil
}

func runMatch(ctx context.Context, client ControlClient, filterHex string, out io.Writer) error {
	res, err := client.Match(ctx, filterHex)
	if err != nil {
		return fmt.Errorf("failed to match: %w", err)
	}
	fmt.Fprintf(out, "key=%s matches=%t\n", res.Key, res.Matches)
	return nil
}
