package source

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"

	"firestige.xyz/streetpass/internal/config"
	"firestige.xyz/streetpass/internal/dot11"
)

var testMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

func probeFrame(t *testing.T) []byte {
	t.Helper()
	frame, err := dot11.BuildProbeRequest(testMAC, "ssid", dot11.DefaultVendorOUI, []byte{0xF0, 0x08, 1, 2, 3, 4, 5, 6, 7, 8}, 7)
	require.NoError(t, err)
	return frame
}

func beaconFrame(t *testing.T) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.RadioTap{Present: layers.RadioTapPresentFlags},
		&layers.Dot11{Type: layers.Dot11TypeMgmtBeacon, Address1: testMAC, Address2: testMAC, Address3: testMAC},
		gopacket.Payload(make([]byte, 12)),
	))
	return buf.Bytes()
}

func ci(n int) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{Timestamp: time.Unix(1700000000, 0), CaptureLength: n, Length: n}
}

func TestReaderSourcePcap(t *testing.T) {
	frames := [][]byte{probeFrame(t), beaconFrame(t)}

	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeIEEE80211Radio))
	for _, f := range frames {
		require.NoError(t, w.WritePacket(ci(len(f)), f))
	}

	src, err := NewReaderSource(&buf)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, layers.LinkTypeIEEE80211Radio, src.LinkType())
	for _, want := range frames {
		data, info, err := src.ReadPacketData()
		require.NoError(t, err)
		assert.Equal(t, want, data)
		assert.Equal(t, len(want), info.CaptureLength)
	}
	_, _, err = src.ReadPacketData()
	assert.Equal(t, io.EOF, err)
}

func TestReaderSourcePcapng(t *testing.T) {
	frame := probeFrame(t)

	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeIEEE80211Radio)
	require.NoError(t, err)
	require.NoError(t, w.WritePacket(ci(len(frame)), frame))
	require.NoError(t, w.Flush())

	src, err := NewReaderSource(&buf)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeIEEE80211Radio, src.LinkType())

	data, _, err := src.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, frame, data)

	_, _, err = src.ReadPacketData()
	assert.Equal(t, io.EOF, err)
}

func TestReaderSourceErrors(t *testing.T) {
	_, err := NewReaderSource(bytes.NewReader(nil))
	assert.Error(t, err)

	_, err = NewReaderSource(bytes.NewReader([]byte("definitely not a capture file")))
	assert.Error(t, err)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probes.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeIEEE80211Radio))
	frame := probeFrame(t)
	require.NoError(t, w.WritePacket(ci(len(frame)), frame))
	require.NoError(t, f.Close())

	src, err := Open(config.CaptureConfig{Type: "file", File: path})
	require.NoError(t, err)
	data, _, err := src.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, frame, data)
	assert.NoError(t, src.Close())
	assert.NoError(t, src.Close())

	_, err = OpenFile("")
	assert.Error(t, err)
	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
	_, err = Open(config.CaptureConfig{Type: "usb"})
	assert.Error(t, err)
}

func TestProbeRequestFilter(t *testing.T) {
	const snapLen = 2048
	vm, err := bpf.NewVM(ProbeRequestFilter(snapLen))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"probe request", probeFrame(t), snapLen},
		{"beacon", beaconFrame(t), 0},
		{"short radiotap", []byte{0x00, 0x00, 0x08}, 0},
		{"radiotap longer than frame", []byte{0x00, 0x00, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.Run(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	raw, err := assembleProbeFilter(snapLen)
	require.NoError(t, err)
	assert.Len(t, raw, len(ProbeRequestFilter(snapLen)))
}

func TestRecomputeSize(t *testing.T) {
	tests := []struct {
		name           string
		bufferMB, snap int
		pageSize       int
		wantErr        bool
	}{
		{"default", 8, 4096, 4096, false},
		{"small snap", 1, 256, 4096, false},
		{"jumbo snap", 64, 65535, 4096, false},
		{"zero buffer", 0, 4096, 4096, true},
		{"zero snap", 8, 0, 4096, true},
		{"odd page", 8, 4096, 1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frameSize, blockSize, numBlocks, err := recomputeSize(tt.bufferMB, tt.snap, tt.pageSize)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Zero(t, frameSize%16, "frame size %d not aligned", frameSize)
			assert.GreaterOrEqual(t, frameSize, tt.snap)
			assert.Zero(t, blockSize%tt.pageSize, "block size %d not page aligned", blockSize)
			assert.GreaterOrEqual(t, blockSize, frameSize)
			assert.GreaterOrEqual(t, numBlocks, 1)
		})
	}
}
