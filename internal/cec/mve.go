package cec

import "fmt"

// MVESize is the encoded size of one MVE.
const MVESize = 3

// MVE is a mask/value/expectation assertion carried by a title filter.
type MVE struct {
	Mask        uint8
	Value       uint8
	Expectation uint8
}

// ParseMVE decodes one MVE from the front of b.
func ParseMVE(b []byte) (MVE, int, error) {
	if len(b) < MVESize {
		return MVE{}, 0, fmt.Errorf("%w: mve needs %d bytes, have %d", ErrTruncatedInput, MVESize, len(b))
	}
	return MVE{Mask: b[0], Value: b[1], Expectation: b[2]}, MVESize, nil
}

// ByteSize returns the encoded size.
func (m MVE) ByteSize() int { return MVESize }

// Bytes returns the wire encoding.
func (m MVE) Bytes() []byte { return m.appendTo(make([]byte, 0, MVESize)) }

func (m MVE) appendTo(b []byte) []byte {
	return append(b, m.Mask, m.Value, m.Expectation)
}

// Matches reports whether each side's expectation holds for the other side's
// value under its own mask.
func (m MVE) Matches(other MVE) bool {
	return m.Mask&m.Expectation == m.Mask&other.Value &&
		other.Mask&other.Expectation == other.Mask&m.Value
}

func (m MVE) String() string {
	return fmt.Sprintf("{mask:%02x value:%02x expect:%02x}", m.Mask, m.Value, m.Expectation)
}
