package cec

import (
	"fmt"
	"strings"
)

const (
	// TitleFilterHeaderSize is the fixed part of an encoded title filter.
	TitleFilterHeaderSize = 5
	// MaxMVEs is the most MVEs a title filter can carry.
	MaxMVEs = 0x0F
)

// TitleFilter matches peers advertising the same title with a compatible
// send mode and agreeing MVEs.
type TitleFilter struct {
	titleID  BE32
	sendMode SendMode
	mves     []MVE
}

// NewTitleFilter builds a title filter, validating the mode and MVE count.
func NewTitleFilter(titleID uint32, mode SendMode, mves ...MVE) (TitleFilter, error) {
	f := TitleFilter{titleID: NewBE32(titleID)}
	if err := f.SetSendMode(mode); err != nil {
		return TitleFilter{}, err
	}
	if err := f.SetMVEs(mves); err != nil {
		return TitleFilter{}, err
	}
	return f, nil
}

// ParseTitleFilter decodes one title filter and its MVEs from the front of b.
func ParseTitleFilter(b []byte) (TitleFilter, int, error) {
	if len(b) < TitleFilterHeaderSize {
		return TitleFilter{}, 0, fmt.Errorf("%w: title filter needs %d bytes, have %d",
			ErrTruncatedInput, TitleFilterHeaderSize, len(b))
	}
	var f TitleFilter
	copy(f.titleID[:], b[:4])
	mode, count := b[4]>>4, int(b[4]&0x0F)
	f.sendMode = SendMode(mode)
	if !f.sendMode.Valid() {
		return TitleFilter{}, 0, fmt.Errorf("%w: nibble %#x in title %08x", ErrInvalidSendMode, mode, f.titleID.Uint32())
	}

	need := TitleFilterHeaderSize + count*MVESize
	if len(b) < need {
		return TitleFilter{}, 0, fmt.Errorf("%w: title filter with %d mves needs %d bytes, have %d",
			ErrTruncatedInput, count, need, len(b))
	}
	off := TitleFilterHeaderSize
	for i := 0; i < count; i++ {
		m, n, err := ParseMVE(b[off:])
		if err != nil {
			return TitleFilter{}, 0, err
		}
		f.mves = append(f.mves, m)
		off += n
	}
	return f, off, nil
}

// TitleID returns the title identifier.
func (f TitleFilter) TitleID() uint32 { return f.titleID.Uint32() }

// SetTitleID replaces the title identifier.
func (f *TitleFilter) SetTitleID(id uint32) { f.titleID = NewBE32(id) }

// SendMode returns the advertised send mode.
func (f TitleFilter) SendMode() SendMode { return f.sendMode }

// SetSendMode replaces the send mode.
func (f *TitleFilter) SetSendMode(m SendMode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSendMode, uint8(m))
	}
	f.sendMode = m
	return nil
}

// MVEs returns a copy of the MVE list.
func (f TitleFilter) MVEs() []MVE {
	if len(f.mves) == 0 {
		return nil
	}
	return append([]MVE(nil), f.mves...)
}

// SetMVEs replaces the MVE list. At most MaxMVEs entries fit the wire count.
func (f *TitleFilter) SetMVEs(mves []MVE) error {
	if len(mves) > MaxMVEs {
		return fmt.Errorf("%w: %d mves, at most %d", ErrLimitExceeded, len(mves), MaxMVEs)
	}
	if len(mves) == 0 {
		f.mves = nil
		return nil
	}
	f.mves = append([]MVE(nil), mves...)
	return nil
}

// ByteSize returns the encoded size.
func (f TitleFilter) ByteSize() int { return TitleFilterHeaderSize + len(f.mves)*MVESize }

// Bytes returns the wire encoding.
func (f TitleFilter) Bytes() []byte { return f.appendTo(make([]byte, 0, f.ByteSize())) }

func (f TitleFilter) appendTo(b []byte) []byte {
	b = append(b, f.titleID[:]...)
	b = append(b, byte(f.sendMode)<<4|byte(len(f.mves)))
	for _, m := range f.mves {
		b = m.appendTo(b)
	}
	return b
}

// Matches requires the same title, compatible send modes and pairwise
// matching MVEs at every position.
func (f TitleFilter) Matches(other TitleFilter) bool {
	if f.titleID != other.titleID || !IsCompatible(f.sendMode, other.sendMode) {
		return false
	}
	if len(f.mves) != len(other.mves) {
		return false
	}
	for i := range f.mves {
		if !f.mves[i].Matches(other.mves[i]) {
			return false
		}
	}
	return true
}

func (f TitleFilter) listMarker() Marker { return MarkerTitle }

func (f TitleFilter) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "title %08x %s", f.titleID.Uint32(), f.sendMode)
	for _, m := range f.mves {
		sb.WriteByte(' ')
		sb.WriteString(m.String())
	}
	return sb.String()
}
