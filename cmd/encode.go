package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"

	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/dot11"
	"firestige.xyz/streetpass/internal/radio"
)

// encodeCmd prints the local module filter as it goes on the air.
var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode the configured local module filter",
	Long: `Encode the local module filter described by the config file.

By default only the filter bytes are printed. --frame prints the whole probe
request a beacon would send and --pcap writes that frame to a capture file.

Examples:
  streetpass encode -c config.yml
  streetpass encode --frame --mac 02:00:00:00:00:01
  streetpass encode --pcap beacon.pcap`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := runEncode(cfg, encodeOpts, cmd.OutOrStdout()); err != nil {
			exitWithError("encode failed", err)
		}
	},
}

type encodeOptions struct {
	frame  bool
	pcap   string
	mac    string
	output string
}

var encodeOpts encodeOptions

func init() {
	encodeCmd.Flags().BoolVar(&encodeOpts.frame, "frame", false, "print the full radiotap probe request instead of the filter")
	encodeCmd.Flags().StringVar(&encodeOpts.pcap, "pcap", "", "write the probe request to this pcap file")
	encodeCmd.Flags().StringVar(&encodeOpts.mac, "mac", "", "source MAC of the probe request (default device.mac or the interface address)")
	encodeCmd.Flags().StringVarP(&encodeOpts.output, "output", "o", "text", "output format for the filter: text, json or yaml")
}

// resolveMAC is swapped in tests.
var resolveMAC = radio.ResolveMAC

func runEncode(cfg *config.GlobalConfig, opts encodeOptions, w io.Writer) error {
	local, err := cfg.Filter.ModuleFilter(cfg.Device.Key)
	if err != nil {
		return fmt.Errorf("build local filter: %w", err)
	}
	payload := local.Bytes()

	if !opts.frame && opts.pcap == "" {
		if opts.output == "text" || opts.output == "" {
			_, err := fmt.Fprintln(w, hex.EncodeToString(payload))
			return err
		}
		return render(w, opts.output, []filterView{newFilterView(payload, local)})
	}

	oui, err := dot11.ParseVendorOUI(cfg.Scan.VendorOUI)
	if err != nil {
		return err
	}
	var src net.HardwareAddr
	if opts.mac != "" {
		src, err = net.ParseMAC(opts.mac)
	} else {
		iface := cfg.Beacon.Interface
		if iface == "" {
			iface = cfg.Capture.Interface
		}
		src, err = resolveMAC(cfg.Device.MAC, iface)
	}
	if err != nil {
		return fmt.Errorf("source mac: %w", err)
	}
	frame, err := dot11.BuildProbeRequest(src, cfg.Beacon.SSID, oui, payload, 0)
	if err != nil {
		return err
	}

	if opts.pcap != "" {
		if err := writeFramePcap(opts.pcap, frame); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %d byte probe request to %s\n", len(frame), opts.pcap)
	}
	if opts.frame {
		_, err = fmt.Fprintln(w, hex.EncodeToString(frame))
	}
	return err
}

func writeFramePcap(path string, frame []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	pw := pcapgo.NewWriter(f)
	if err := pw.WriteFileHeader(65535, layers.LinkTypeIEEE80211Radio); err != nil {
		f.Close()
		return err
	}
	ci := gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(frame), Length: len(frame)}
	if err := pw.WritePacket(ci, frame); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
