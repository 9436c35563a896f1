package ccmp

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha1"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/streetpass/internal/cec"
)

var (
	normalKey = []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	cecdKey   = []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11}

	masterCID = cec.Key{0x68, 0xc7, 0x27, 0x39, 0x0e, 0x2f, 0xbb, 0x04}
	clientCID = cec.Key{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	masterMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	clientMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// One block of CTR keystream over zeros is the block cipher applied to the IV.
func expectedKey(t *testing.T) SessionKey {
	t.Helper()
	mac := hmac.New(sha1.New, cecdKey)
	mac.Write(masterCID[:])
	mac.Write(clientCID[:])
	mac.Write(masterMAC)
	mac.Write(clientMAC)
	iv := mac.Sum(nil)[:16]

	block, err := aes.NewCipher(normalKey)
	require.NoError(t, err)
	var k SessionKey
	block.Encrypt(k[:], iv)
	return k
}

func TestDerive(t *testing.T) {
	d, err := NewDeriver(normalKey, cecdKey)
	require.NoError(t, err)

	got, err := d.Derive(masterCID, clientCID, masterMAC, clientMAC)
	require.NoError(t, err)
	assert.Equal(t, expectedKey(t), got)
	assert.Len(t, got.String(), 32)

	again, err := d.Derive(masterCID, clientCID, masterMAC, clientMAC)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestDeriveRoleOrderMatters(t *testing.T) {
	d, err := NewDeriver(normalKey, cecdKey)
	require.NoError(t, err)

	a, err := d.Derive(masterCID, clientCID, masterMAC, clientMAC)
	require.NoError(t, err)
	b, err := d.Derive(clientCID, masterCID, clientMAC, masterMAC)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveBadMAC(t *testing.T) {
	d, err := NewDeriver(normalKey, cecdKey)
	require.NoError(t, err)
	_, err = d.Derive(masterCID, clientCID, net.HardwareAddr{1, 2, 3}, clientMAC)
	assert.Error(t, err)
}

func TestNewDeriverShortKeys(t *testing.T) {
	_, err := NewDeriver(normalKey[:15], cecdKey)
	assert.Error(t, err)
	_, err = NewDeriver(normalKey, cecdKey[:16])
	assert.Error(t, err)
}

func TestLoadKeys(t *testing.T) {
	dir := t.TempDir()
	normalPath := filepath.Join(dir, "normal.key")
	cecdPath := filepath.Join(dir, "cecd.key")
	// Trailing bytes past the key size are ignored.
	require.NoError(t, os.WriteFile(normalPath, append(append([]byte{}, normalKey...), 0xff, 0xff), 0o600))
	require.NoError(t, os.WriteFile(cecdPath, cecdKey, 0o600))

	d, err := LoadKeys(normalPath, cecdPath)
	require.NoError(t, err)
	got, err := d.Derive(masterCID, clientCID, masterMAC, clientMAC)
	require.NoError(t, err)
	assert.Equal(t, expectedKey(t), got)

	require.NoError(t, os.WriteFile(cecdPath, cecdKey[:10], 0o600))
	_, err = LoadKeys(normalPath, cecdPath)
	assert.Error(t, err)

	_, err = LoadKeys(filepath.Join(dir, "missing"), cecdPath)
	assert.Error(t, err)
}
