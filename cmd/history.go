package cmd

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/core"
	"firestige.xyz/streetpass/internal/history"
)

// historyCmd groups the encounter history queries.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the encounter history",
	Long: `Read the encounter history written by scan when history.enabled is set.

Stop any running scan first, the store takes an exclusive lock.`,
}

var historyPeersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List every peer ever matched, most recently seen first",
	Run: func(cmd *cobra.Command, args []string) {
		err := withHistory(func(r historyReader) error {
			return runHistoryPeers(r, historyOpts.output, cmd.OutOrStdout())
		})
		if err != nil {
			exitWithError("history peers failed", err)
		}
	},
}

var historyEncountersCmd = &cobra.Command{
	Use:   "encounters",
	Short: "List recent encounters, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		err := withHistory(func(r historyReader) error {
			return runHistoryEncounters(r, historyOpts.limit, historyOpts.output, cmd.OutOrStdout())
		})
		if err != nil {
			exitWithError("history encounters failed", err)
		}
	},
}

type historyOptions struct {
	path   string
	output string
	limit  int
}

var historyOpts historyOptions

func init() {
	historyCmd.PersistentFlags().StringVar(&historyOpts.path, "path", "", "history directory (default history.path from the config)")
	historyCmd.PersistentFlags().StringVarP(&historyOpts.output, "output", "o", "text", "output format: text or json")
	historyEncountersCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 20, "maximum encounters to list, 0 for all")

	historyCmd.AddCommand(historyPeersCmd)
	historyCmd.AddCommand(historyEncountersCmd)
}

// historyReader is the read side of history.Store.
type historyReader interface {
	Peers() ([]history.PeerRecord, error)
	Encounters(limit int) ([]core.Encounter, error)
}

func withHistory(fn func(historyReader) error) error {
	path := historyOpts.path
	if path == "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("no --path given and config unusable: %w", err)
		}
		path = cfg.History.Path
	}
	if path == "" {
		return errors.New("no history path: pass --path or set history.path")
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runHistoryPeers(r historyReader, format string, w io.Writer) error {
	peers, err := r.Peers()
	if err != nil {
		return err
	}
	switch format {
	case "json":
		return writeJSON(w, peers)
	case "text", "":
		if len(peers) == 0 {
			fmt.Fprintln(w, "no peers recorded")
			return nil
		}
		fmt.Fprintf(w, "%-16s  %-17s  %6s  %-20s  %s\n", "KEY", "LAST MAC", "COUNT", "LAST SEEN", "FIRST SEEN")
		for _, p := range peers {
			fmt.Fprintf(w, "%-16s  %-17s  %6d  %-20s  %s\n", p.Key, p.LastMAC, p.Count,
				p.LastSeen.Format(timeLayout), p.FirstSeen.Format(timeLayout))
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (must be text/json)", format)
	}
}

func runHistoryEncounters(r historyReader, limit int, format string, w io.Writer) error {
	if limit < 0 {
		return errors.New("--limit must not be negative")
	}
	encs, err := r.Encounters(limit)
	if err != nil {
		return err
	}
	switch format {
	case "json":
		return writeJSON(w, encs)
	case "text", "":
		if len(encs) == 0 {
			fmt.Fprintln(w, "no encounters recorded")
			return nil
		}
		for _, e := range encs {
			fmt.Fprintf(w, "%s  %s  key=%s mac=%s signal=%d filter=%s\n", e.Timestamp.Format(timeLayout),
				e.ID, e.PeerKey, e.PeerMAC, e.Signal, hex.EncodeToString(e.Filter))
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (must be text/json)", format)
	}
}

const timeLayout = "2006-01-02 15:04:05"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
