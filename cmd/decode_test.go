package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/dot11"
)

const (
	capturedHex = "11 0D 00 05 16 00 31 FF EE DD 00 02 08 00 00 F0 08 68 C7 27 39 0E 2F BB 04"
	// exchangeHex asks for title 0x00020800 in EXCHANGE mode.
	exchangeHex = "10050002080000f008aabbccdd00112233"
	// otherHex asks for title 0x00099900 only.
	otherHex = "10050009990000f008aabbccdd00112233"
)

func TestRunDecodeText(t *testing.T) {
	var buf bytes.Buffer
	err := runDecode(decodeOptions{output: "text"}, []string{capturedHex}, &buf)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "key=68c727390e2fbb04")
	assert.Contains(t, buf.String(), "size=25")
	assert.NotContains(t, buf.String(), "matches:")
}

func TestRunDecodeJSON(t *testing.T) {
	var buf bytes.Buffer
	err := runDecode(decodeOptions{output: "json"}, []string{capturedHex}, &buf)
	require.NoError(t, err)

	var views []filterView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 1)
	v := views[0]
	assert.Equal(t, "68c727390e2fbb04", v.Key)
	assert.Equal(t, 25, v.Size)
	assert.Nil(t, v.RawBytes)
	require.NotNil(t, v.Titles)
	require.Len(t, v.Titles.Filters, 2)
	assert.Equal(t, "0x00051600", v.Titles.Filters[0].TitleID)
	assert.Equal(t, "SEND_RECV", v.Titles.Filters[0].SendMode)
	assert.Equal(t, []mveView{{Mask: "0xff", Value: "0xee", Expectation: "0xdd"}}, v.Titles.Filters[0].MVEs)
	assert.Equal(t, "0x00020800", v.Titles.Filters[1].TitleID)
	assert.Equal(t, "EXCHANGE", v.Titles.Filters[1].SendMode)
	assert.Empty(t, v.Titles.Filters[1].MVEs)
}

func TestRunDecodeYAML(t *testing.T) {
	var buf bytes.Buffer
	err := runDecode(decodeOptions{output: "yaml"}, []string{capturedHex}, &buf)
	require.NoError(t, err)

	var views []filterView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "68c727390e2fbb04", views[0].Key)
	assert.Len(t, views[0].Titles.Filters, 2)
}

func TestRunDecodeAgainst(t *testing.T) {
	var buf bytes.Buffer
	err := runDecode(decodeOptions{output: "json", against: exchangeHex}, []string{capturedHex, otherHex}, &buf)
	require.NoError(t, err)

	var views []filterView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 2)
	require.NotNil(t, views[0].Matches)
	assert.True(t, *views[0].Matches)
	require.NotNil(t, views[1].Matches)
	assert.False(t, *views[1].Matches)
}

func TestRunDecodeReportsParseErrors(t *testing.T) {
	var buf bytes.Buffer
	err := runDecode(decodeOptions{output: "text"}, []string{"11 0D 00 05"}, &buf)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "110d0005: ")
}

func TestRunDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		opts decodeOptions
		args []string
	}{
		{name: "nothing to decode", opts: decodeOptions{output: "text"}},
		{name: "bad hex", opts: decodeOptions{output: "text"}, args: []string{"zz"}},
		{name: "bad against", opts: decodeOptions{output: "text", against: "11"}, args: []string{capturedHex}},
		{name: "bad format", opts: decodeOptions{output: "xml"}, args: []string{capturedHex}},
		{name: "missing file", opts: decodeOptions{output: "text", file: "/nonexistent.pcap", oui: config.DefaultVendorOUI}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Error(t, runDecode(tt.opts, tt.args, &buf))
		})
	}
}

func TestRunDecodeCaptureFile(t *testing.T) {
	src := []byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	b, err := parseHexArg(capturedHex)
	require.NoError(t, err)
	probe, err := dot11.BuildProbeRequest(src, config.DefaultSSID, dot11.DefaultVendorOUI, b, 7)
	require.NoError(t, err)
	other, err := dot11.BuildProbeRequest(src, config.DefaultSSID, dot11.VendorOUI{0x00, 0x50, 0xF2, 0x04}, b, 8)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeIEEE80211Radio))
	for _, frame := range [][]byte{probe, other} {
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(1700000000, 0), CaptureLength: len(frame), Length: len(frame)}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	require.NoError(t, f.Close())

	var buf bytes.Buffer
	err = runDecode(decodeOptions{file: path, output: "json", oui: config.DefaultVendorOUI}, nil, &buf)
	require.NoError(t, err)

	var views []filterView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "02:11:22:33:44:55", views[0].Source)
	assert.Equal(t, "68c727390e2fbb04", views[0].Key)
}
