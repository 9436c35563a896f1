// Package dot11 decodes and builds the 802.11 probe requests that carry
// module filters in a vendor specific information element.
package dot11

import (
	"encoding/hex"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/streetpass/internal/core"
)

// VendorOUI is the three byte OUI followed by the vendor specific type byte.
type VendorOUI [4]byte

// DefaultVendorOUI is 00:1F:32 type 0x01.
var DefaultVendorOUI = VendorOUI{0x00, 0x1F, 0x32, 0x01}

// ParseVendorOUI converts a 4 byte slice.
func ParseVendorOUI(b []byte) (VendorOUI, error) {
	var o VendorOUI
	if len(b) != len(o) {
		return o, fmt.Errorf("vendor oui needs %d bytes, got %d", len(o), len(b))
	}
	copy(o[:], b)
	return o, nil
}

func (o VendorOUI) String() string {
	parts := make([]string, 3)
	for i := range parts {
		parts[i] = hex.EncodeToString(o[i : i+1])
	}
	return strings.Join(parts, ":") + "/" + hex.EncodeToString(o[3:])
}

// MaxVendorPayload is the most payload one vendor element holds after its
// OUI and type byte.
const MaxVendorPayload = 255 - len(VendorOUI{})

// ProbeRequest is the part of a captured probe request the scanner needs.
// Payloads alias the decoded buffer; copy them to keep them past the next read.
type ProbeRequest struct {
	Source    net.HardwareAddr
	BSSID     net.HardwareAddr
	SSID      string
	Sequence  uint16
	Signal    int8 // dBm
	HasSignal bool
	Frequency uint16 // MHz, 0 when unknown
	FCSValid  bool
	Payloads  [][]byte // vendor element bodies after the OUI and type byte
}

// Decoder decodes probe requests reusing its layers between calls.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	oui   VendorOUI
	radio layers.RadioTap
	frame layers.Dot11
	ie    layers.Dot11InformationElement
}

// NewDecoder returns a decoder collecting vendor elements that carry oui.
func NewDecoder(oui VendorOUI) *Decoder {
	return &Decoder{oui: oui}
}

// DecodeProbeRequest decodes one frame with a fresh Decoder.
func DecodeProbeRequest(data []byte, link layers.LinkType, oui VendorOUI) (*ProbeRequest, error) {
	return NewDecoder(oui).Decode(data, link)
}

// Decode decodes a radiotap or bare 802.11 frame. Frames that are not probe
// requests fail with core.ErrNotProbeRequest, probe requests without a
// matching vendor element with core.ErrNoVendorElement.
func (d *Decoder) Decode(data []byte, link layers.LinkType) (req *ProbeRequest, err error) {
	// The radiotap decoder indexes fields without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			req, err = nil, fmt.Errorf("malformed frame: %v", r)
		}
	}()

	df := gopacket.NilDecodeFeedback
	req = &ProbeRequest{}
	d.radio, d.frame = layers.RadioTap{}, layers.Dot11{}

	body := data
	badFCS := false
	switch link {
	case layers.LinkTypeIEEE80211Radio:
		if err := d.radio.DecodeFromBytes(data, df); err != nil {
			return nil, fmt.Errorf("radiotap: %w", err)
		}
		body = d.radio.Payload
		badFCS = d.radio.Flags.BadFCS()
		if d.radio.Present.DBMAntennaSignal() {
			req.Signal, req.HasSignal = d.radio.DBMAntennaSignal, true
		}
		if d.radio.Present.Channel() {
			req.Frequency = uint16(d.radio.ChannelFrequency)
		}
	case layers.LinkTypeIEEE802_11:
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedLink, link)
	}

	if err := d.frame.DecodeFromBytes(body, df); err != nil {
		return nil, fmt.Errorf("802.11: %w", err)
	}
	if d.frame.Type != layers.Dot11TypeMgmtProbeReq {
		return nil, fmt.Errorf("%w: %s", core.ErrNotProbeRequest, d.frame.Type)
	}

	req.Source = slices.Clone(d.frame.Address2)
	req.BSSID = slices.Clone(d.frame.Address3)
	req.Sequence = d.frame.SequenceNumber
	req.FCSValid = !badFCS && d.frame.ChecksumValid()

	d.walkElements(req, d.frame.Payload)
	if link == layers.LinkTypeIEEE802_11 && len(req.Payloads) == 0 && !req.FCSValid {
		// Bare captures may carry no FCS at all, and Dot11 always drops the
		// last four bytes as one. Walk the elements again untrimmed.
		hdr := len(body) - len(d.frame.Payload) - 4
		if hdr >= 0 {
			req.SSID, req.Payloads = "", nil
			d.walkElements(req, body[hdr:])
		}
	}
	if len(req.Payloads) == 0 {
		return req, fmt.Errorf("%w: from %s", core.ErrNoVendorElement, req.Source)
	}
	return req, nil
}

func (d *Decoder) walkElements(req *ProbeRequest, elems []byte) {
	df := gopacket.NilDecodeFeedback
	for len(elems) >= 2 {
		id, length := layers.Dot11InformationElementID(elems[0]), int(elems[1])
		if len(elems) < 2+length {
			return
		}
		if id == layers.Dot11InformationElementIDVendor && length < len(d.oui) {
			elems = elems[2+length:]
			continue
		}
		if err := d.ie.DecodeFromBytes(elems, df); err != nil {
			// gopacket wants four bytes past the header, so only a short
			// trailing element ends up here.
			if id == layers.Dot11InformationElementIDSSID {
				req.SSID = string(elems[2 : 2+length])
			}
			return
		}
		switch d.ie.ID {
		case layers.Dot11InformationElementIDSSID:
			req.SSID = string(d.ie.Info)
		case layers.Dot11InformationElementIDVendor:
			if [4]byte(d.ie.OUI) == d.oui {
				req.Payloads = append(req.Payloads, d.ie.Info)
			}
		}
		elems = d.ie.Payload
	}
}
