package dot11

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/streetpass/internal/core"
)

// broadcast is the wildcard destination and BSSID of a probe request.
var broadcast = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// supportedRates are the 802.11b/g rates advertised by the handhelds, in
// 500 kbit/s units with the basic rate bit set on the b rates.
var supportedRates = []byte{0x82, 0x84, 0x8B, 0x96, 0x0C, 0x12, 0x18, 0x24}

// BuildProbeRequest returns a radiotap framed broadcast probe request from src
// carrying payload in one vendor element tagged with oui.
func BuildProbeRequest(src net.HardwareAddr, ssid string, oui VendorOUI, payload []byte, seq uint16) ([]byte, error) {
	if len(payload) > MaxVendorPayload {
		return nil, fmt.Errorf("%w: %d bytes, max %d", core.ErrPayloadTooLarge, len(payload), MaxVendorPayload)
	}
	if len(ssid) > 32 {
		return nil, fmt.Errorf("ssid %q longer than 32 bytes", ssid)
	}
	if len(src) != 6 {
		return nil, fmt.Errorf("source address %s is not a 48-bit MAC", src)
	}

	radio := &layers.RadioTap{
		Present: layers.RadioTapPresentFlags | layers.RadioTapPresentRate,
		Rate:    2, // 1 Mbit/s
	}
	frame := &layers.Dot11{
		Type:           layers.Dot11TypeMgmtProbeReq,
		Address1:       broadcast,
		Address2:       src,
		Address3:       broadcast,
		SequenceNumber: seq & 0x0FFF,
	}
	ssidIE := &layers.Dot11InformationElement{
		ID:   layers.Dot11InformationElementIDSSID,
		Info: []byte(ssid),
	}
	ratesIE := &layers.Dot11InformationElement{
		ID:   layers.Dot11InformationElementIDRates,
		Info: supportedRates,
	}
	vendorIE := &layers.Dot11InformationElement{
		ID:   layers.Dot11InformationElementIDVendor,
		OUI:  oui[:],
		Info: payload,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, radio, frame, ssidIE, ratesIE, vendorIE); err != nil {
		return nil, fmt.Errorf("serialize probe request: %w", err)
	}
	return buf.Bytes(), nil
}
