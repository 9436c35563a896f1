package cec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the size of a device identity key.
const KeySize = 8

// Key is the opaque identity of an advertising device.
type Key [KeySize]byte

// ParseKey decodes a 16 digit hex key. Colons, dashes and spaces between
// digits are ignored.
func ParseKey(s string) (Key, error) {
	var k Key
	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if len(clean) != hex.EncodedLen(KeySize) {
		return k, fmt.Errorf("key %q: want %d hex digits, got %d", s, hex.EncodedLen(KeySize), len(clean))
	}
	if _, err := hex.Decode(k[:], []byte(clean)); err != nil {
		return k, fmt.Errorf("key %q: %w", s, err)
	}
	return k, nil
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// IsZero reports whether every byte of k is zero.
func (k Key) IsZero() bool { return k == Key{} }

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	v, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// KeyFilterSize is the encoded size of a key filter.
const KeyFilterSize = KeySize

// KeyFilter carries the identity key of the device that sent a module filter.
type KeyFilter struct {
	key Key
}

// NewKeyFilter returns a key filter holding k.
func NewKeyFilter(k Key) KeyFilter { return KeyFilter{key: k} }

// ParseKeyFilter decodes one key filter from the front of b.
func ParseKeyFilter(b []byte) (KeyFilter, int, error) {
	if len(b) < KeyFilterSize {
		return KeyFilter{}, 0, fmt.Errorf("%w: key filter needs %d bytes, have %d", ErrTruncatedInput, KeyFilterSize, len(b))
	}
	var f KeyFilter
	copy(f.key[:], b)
	return f, KeyFilterSize, nil
}

// Key returns the identity key.
func (f KeyFilter) Key() Key { return f.key }

// SetKey replaces the identity key.
func (f *KeyFilter) SetKey(k Key) { f.key = k }

// ByteSize returns the encoded size.
func (f KeyFilter) ByteSize() int { return KeyFilterSize }

// Bytes returns the wire encoding.
func (f KeyFilter) Bytes() []byte { return f.appendTo(make([]byte, 0, KeyFilterSize)) }

func (f KeyFilter) appendTo(b []byte) []byte { return append(b, f.key[:]...) }

// Matches always reports true: the key identifies a device, it does not
// restrict who the device exchanges with.
func (f KeyFilter) Matches(KeyFilter) bool { return true }

func (f KeyFilter) listMarker() Marker { return MarkerKey }

func (f KeyFilter) String() string { return "key " + f.key.String() }
