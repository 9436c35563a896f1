package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/streetpass/internal/cec"
	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/dot11"
	"firestige.xyz/streetpass/internal/source"
)

// decodeCmd decodes module filters given as hex or found in a capture file.
var decodeCmd = &cobra.Command{
	Use:   "decode [hex...]",
	Short: "Decode module filters",
	Long: `Decode module filters given as hex arguments, or every filter carried by
the probe requests in a pcap/pcapng file.

Separators (colons, dashes, spaces) and a 0x prefix are accepted in hex input.

Examples:
  streetpass decode "11 0D 00 05 16 00 31 FF EE DD 00 02 08 00 00 F0 08 68 C7 27 39 0E 2F BB 04"
  streetpass decode --file capture.pcapng --output json
  streetpass decode 110d... --against 1107...`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDecode(decodeOpts, args, cmd.OutOrStdout()); err != nil {
			exitWithError("decode failed", err)
		}
	},
}

type decodeOptions struct {
	file    string
	output  string
	against string
	oui     string
}

var decodeOpts decodeOptions

func init() {
	decodeCmd.Flags().StringVarP(&decodeOpts.file, "file", "f", "", "decode the filters carried by probe requests in this capture file")
	decodeCmd.Flags().StringVarP(&decodeOpts.output, "output", "o", "text", "output format: text, json or yaml")
	decodeCmd.Flags().StringVar(&decodeOpts.against, "against", "", "hex of a local filter to match every decoded filter against")
	decodeCmd.Flags().StringVar(&decodeOpts.oui, "oui", config.DefaultVendorOUI, "vendor OUI and type carrying filters in captures")
}

func runDecode(opts decodeOptions, args []string, w io.Writer) error {
	var local *cec.ModuleFilter
	if opts.against != "" {
		b, err := parseHexArg(opts.against)
		if err != nil {
			return fmt.Errorf("--against: %w", err)
		}
		if local, err = cec.Parse(b); err != nil {
			return fmt.Errorf("--against: %w", err)
		}
	}

	var views []filterView
	switch {
	case opts.file != "":
		var ouiHex config.HexBytes
		if err := ouiHex.UnmarshalText([]byte(opts.oui)); err != nil {
			return fmt.Errorf("--oui: %w", err)
		}
		oui, err := dot11.ParseVendorOUI(ouiHex)
		if err != nil {
			return fmt.Errorf("--oui: %w", err)
		}
		if views, err = decodeCapture(opts.file, oui); err != nil {
			return err
		}
	case len(args) > 0:
		for _, arg := range args {
			b, err := parseHexArg(arg)
			if err != nil {
				return err
			}
			views = append(views, decodeFilter(b))
		}
	default:
		return errors.New("nothing to decode: pass hex arguments or --file")
	}

	if local != nil {
		for i := range views {
			if views[i].filter == nil {
				continue
			}
			matched := local.Matches(views[i].filter)
			views[i].Matches = &matched
		}
	}
	return render(w, opts.output, views)
}

func decodeFilter(b []byte) filterView {
	f, err := cec.Parse(b)
	if err != nil {
		return errorView(b, err)
	}
	return newFilterView(b, f)
}

// decodeCapture decodes the filters of every probe request in a capture file.
// Frames that are not probe requests or carry no filter are skipped.
func decodeCapture(path string, oui dot11.VendorOUI) ([]filterView, error) {
	src, err := source.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dec := dot11.NewDecoder(oui)
	var views []filterView
	for {
		data, _, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return views, nil
		}
		if err != nil {
			return views, fmt.Errorf("read %s: %w", path, err)
		}
		req, err := dec.Decode(data, src.LinkType())
		if err != nil {
			continue
		}
		for _, p := range req.Payloads {
			v := decodeFilter(p)
			v.Source = req.Source.String()
			views = append(views, v)
		}
	}
}

func parseHexArg(s string) ([]byte, error) {
	var h config.HexBytes
	if err := h.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return nil, err
	}
	return h, nil
}
