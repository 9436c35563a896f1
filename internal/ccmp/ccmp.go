// Package ccmp derives the per-session CCMP key two devices use once their
// module filters have matched.
package ccmp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"fmt"
	"io"
	"net"
	"os"

	"firestige.xyz/streetpass/internal/cec"
)

const (
	// NormalKeySize is the size of the AES key shared by all devices.
	NormalKeySize = 16
	// CECDKeySize is the size of the HMAC key shared by all devices.
	CECDKeySize = 17
	// SessionKeySize is the size of a derived CCMP key.
	SessionKeySize = aes.BlockSize
)

// SessionKey is a derived CCMP key.
type SessionKey [SessionKeySize]byte

// Deriver computes session keys from the two device secrets.
type Deriver struct {
	normal [NormalKeySize]byte
	cecd   [CECDKeySize]byte
}

// NewDeriver builds a deriver from raw key material.
func NewDeriver(normal, cecd []byte) (*Deriver, error) {
	if len(normal) < NormalKeySize {
		return nil, fmt.Errorf("normal key: need %d bytes, have %d", NormalKeySize, len(normal))
	}
	if len(cecd) < CECDKeySize {
		return nil, fmt.Errorf("cecd key: need %d bytes, have %d", CECDKeySize, len(cecd))
	}
	d := &Deriver{}
	copy(d.normal[:], normal)
	copy(d.cecd[:], cecd)
	return d, nil
}

// LoadKeys reads both secrets from files. Only the leading key-sized
// prefix of each file is used.
func LoadKeys(normalPath, cecdPath string) (*Deriver, error) {
	normal, err := readPrefix(normalPath, NormalKeySize)
	if err != nil {
		return nil, fmt.Errorf("load normal key: %w", err)
	}
	cecd, err := readPrefix(cecdPath, CECDKeySize)
	if err != nil {
		return nil, fmt.Errorf("load cecd key: %w", err)
	}
	return NewDeriver(normal, cecd)
}

func readPrefix(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%s: need %d bytes: %w", path, n, err)
	}
	return buf, nil
}

// Derive returns the session key for a master and a client. The counter
// block is HMAC-SHA1 over both console ids followed by both MAC addresses,
// and the key is one block of AES-CTR keystream under the normal key.
func (d *Deriver) Derive(masterCID, clientCID cec.Key, masterMAC, clientMAC net.HardwareAddr) (SessionKey, error) {
	var out SessionKey
	if len(masterMAC) != 6 || len(clientMAC) != 6 {
		return out, fmt.Errorf("derive session key: mac addresses must be 6 bytes")
	}

	mac := hmac.New(sha1.New, d.cecd[:])
	mac.Write(masterCID[:])
	mac.Write(clientCID[:])
	mac.Write(masterMAC)
	mac.Write(clientMAC)
	iv := mac.Sum(nil)[:aes.BlockSize]

	block, err := aes.NewCipher(d.normal[:])
	if err != nil {
		return out, err
	}
	var zero [aes.BlockSize]byte
	cipher.NewCTR(block, iv).XORKeyStream(out[:], zero[:])
	return out, nil
}

func (k SessionKey) String() string { return fmt.Sprintf("%x", k[:]) }
