package cec

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const (
	// RawPatternSize is the fixed size of a raw bytes pattern on the wire.
	RawPatternSize = 16
	// RawBytesFilterSize is the encoded size of a raw bytes filter.
	RawBytesFilterSize = 1 + RawPatternSize
)

// RawBytesFilter matches peers advertising the same leading pattern bytes.
// Only the first CmpLength bytes of the pattern take part in matching.
type RawBytesFilter struct {
	cmpLength uint8
	pattern   [RawPatternSize]byte
}

// NewRawBytesFilter returns a filter comparing all of pattern.
func NewRawBytesFilter(pattern []byte) (RawBytesFilter, error) {
	var f RawBytesFilter
	if err := f.SetPattern(pattern); err != nil {
		return RawBytesFilter{}, err
	}
	return f, nil
}

// ParseRawBytesFilter decodes one raw bytes filter from the front of b.
func ParseRawBytesFilter(b []byte) (RawBytesFilter, int, error) {
	if len(b) < RawBytesFilterSize {
		return RawBytesFilter{}, 0, fmt.Errorf("%w: raw bytes filter needs %d bytes, have %d",
			ErrTruncatedInput, RawBytesFilterSize, len(b))
	}
	if b[0] > RawPatternSize {
		return RawBytesFilter{}, 0, fmt.Errorf("%w: raw bytes cmp_length %d exceeds %d",
			ErrInvalidCmpLength, b[0], RawPatternSize)
	}
	f := RawBytesFilter{cmpLength: b[0]}
	copy(f.pattern[:], b[1:RawBytesFilterSize])
	return f, RawBytesFilterSize, nil
}

// CmpLength returns how many leading pattern bytes are compared.
func (f RawBytesFilter) CmpLength() int { return int(f.cmpLength) }

// SetCmpLength changes how many leading pattern bytes are compared without
// touching the pattern.
func (f *RawBytesFilter) SetCmpLength(n int) error {
	if n < 0 || n > RawPatternSize {
		return fmt.Errorf("%w: cmp_length %d outside 0..%d", ErrLimitExceeded, n, RawPatternSize)
	}
	f.cmpLength = uint8(n)
	return nil
}

// Pattern returns the compared part of the pattern.
func (f RawBytesFilter) Pattern() []byte {
	return bytes.Clone(f.pattern[:f.cmpLength])
}

// RawPattern returns the whole 16 byte pattern buffer, padding included.
func (f RawBytesFilter) RawPattern() [RawPatternSize]byte { return f.pattern }

// SetPattern replaces the pattern and compares all of it. The unused tail of
// the buffer is zeroed.
func (f *RawBytesFilter) SetPattern(p []byte) error {
	if len(p) > RawPatternSize {
		return fmt.Errorf("%w: raw pattern of %d bytes exceeds %d", ErrLimitExceeded, len(p), RawPatternSize)
	}
	f.pattern = [RawPatternSize]byte{}
	copy(f.pattern[:], p)
	f.cmpLength = uint8(len(p))
	return nil
}

// ByteSize returns the encoded size.
func (f RawBytesFilter) ByteSize() int { return RawBytesFilterSize }

// Bytes returns the wire encoding.
func (f RawBytesFilter) Bytes() []byte {
	return f.appendTo(make([]byte, 0, RawBytesFilterSize))
}

func (f RawBytesFilter) appendTo(b []byte) []byte {
	b = append(b, f.cmpLength)
	return append(b, f.pattern[:]...)
}

// Matches reports whether both filters compare the same number of bytes and
// those bytes are equal.
func (f RawBytesFilter) Matches(other RawBytesFilter) bool {
	return f.cmpLength == other.cmpLength &&
		bytes.Equal(f.pattern[:f.cmpLength], other.pattern[:other.cmpLength])
}

func (f RawBytesFilter) listMarker() Marker { return MarkerRawBytes }

func (f RawBytesFilter) String() string {
	return fmt.Sprintf("raw bytes cmp_length=%d pattern=%s", f.cmpLength, hex.EncodeToString(f.pattern[:f.cmpLength]))
}
