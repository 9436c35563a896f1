package cec

import (
	"errors"
	"fmt"
	"strings"
)

// Marker tags the kind of entries a filter list holds.
type Marker uint8

const (
	MarkerRawBytes Marker = 0x0
	MarkerTitle    Marker = 0x1
	MarkerKey      Marker = 0xF
)

const (
	// ListHeaderSize is the size of a filter list header.
	ListHeaderSize = 2
	// MaxListLength is the largest entry payload a list header can declare.
	MaxListLength = 0xFF
	// MaxFlags is the largest value of the list flags nibble.
	MaxFlags = 0x0F
)

// Valid reports whether m is a defined marker.
func (m Marker) Valid() bool {
	return m == MarkerRawBytes || m == MarkerTitle || m == MarkerKey
}

func (m Marker) String() string {
	switch m {
	case MarkerRawBytes:
		return "raw bytes"
	case MarkerTitle:
		return "title"
	case MarkerKey:
		return "key"
	default:
		return fmt.Sprintf("marker(%#x)", uint8(m))
	}
}

// Filter is the closed set of entry kinds a FilterList can hold.
type Filter[T any] interface {
	RawBytesFilter | TitleFilter | KeyFilter

	ByteSize() int
	Bytes() []byte
	Matches(other T) bool

	appendTo(b []byte) []byte
	listMarker() Marker
}

// FilterList is a marker tagged, length delimited run of filters of one kind.
// The flags nibble is carried through untouched.
type FilterList[T Filter[T]] struct {
	flags   uint8
	entries []T
}

// NewFilterList returns a list holding entries.
func NewFilterList[T Filter[T]](entries ...T) (FilterList[T], error) {
	var l FilterList[T]
	if err := l.SetFilters(entries); err != nil {
		return FilterList[T]{}, err
	}
	return l, nil
}

// ParseFilterList decodes one list of T from the front of b and returns the
// number of bytes it occupied.
func ParseFilterList[T Filter[T]](b []byte) (FilterList[T], int, error) {
	var l FilterList[T]
	if len(b) < ListHeaderSize {
		return l, 0, fmt.Errorf("%w: list header needs %d bytes, have %d", ErrTruncatedInput, ListHeaderSize, len(b))
	}
	marker, want := Marker(b[0]>>4), l.Marker()
	if marker != want {
		return l, 0, fmt.Errorf("%w: got %s, want %s", ErrMarkerMismatch, marker, want)
	}
	length := int(b[1])
	if len(b)-ListHeaderSize < length {
		return l, 0, fmt.Errorf("%w: %s list declares %d bytes, have %d",
			ErrTruncatedInput, want, length, len(b)-ListHeaderSize)
	}

	l.flags = b[0] & MaxFlags
	window := b[ListHeaderSize : ListHeaderSize+length]
	for off := 0; off < len(window); {
		e, n, err := parseEntry[T](window[off:])
		if errors.Is(err, ErrTruncatedInput) {
			return FilterList[T]{}, 0, fmt.Errorf("%w: %s entry at offset %d of %d byte list",
				ErrTrailingData, want, off, length)
		}
		if err != nil {
			return FilterList[T]{}, 0, err
		}
		l.entries = append(l.entries, e)
		off += n
	}
	return l, ListHeaderSize + length, nil
}

func parseEntry[T Filter[T]](b []byte) (T, int, error) {
	var (
		zero  T
		entry any
		n     int
		err   error
	)
	switch any(zero).(type) {
	case RawBytesFilter:
		entry, n, err = ParseRawBytesFilter(b)
	case TitleFilter:
		entry, n, err = ParseTitleFilter(b)
	case KeyFilter:
		entry, n, err = ParseKeyFilter(b)
	}
	if err != nil {
		return zero, 0, err
	}
	return entry.(T), n, nil
}

// Marker returns the wire marker for T.
func (l FilterList[T]) Marker() Marker {
	var zero T
	return zero.listMarker()
}

// Flags returns the flags nibble.
func (l FilterList[T]) Flags() uint8 { return l.flags }

// SetFlags replaces the flags nibble.
func (l *FilterList[T]) SetFlags(flags uint8) error {
	if flags > MaxFlags {
		return fmt.Errorf("%w: flags %#x do not fit a nibble", ErrLimitExceeded, flags)
	}
	l.flags = flags
	return nil
}

// Count returns the number of entries.
func (l FilterList[T]) Count() int { return len(l.entries) }

// Filters returns a copy of the entries.
func (l FilterList[T]) Filters() []T {
	if len(l.entries) == 0 {
		return nil
	}
	return append([]T(nil), l.entries...)
}

// SetFilters replaces the entries. Their encoded size must fit the one byte
// length field.
func (l *FilterList[T]) SetFilters(entries []T) error {
	if size := entriesSize(entries); size > MaxListLength {
		return fmt.Errorf("%w: %s list of %d bytes exceeds %d", ErrLimitExceeded, l.Marker(), size, MaxListLength)
	}
	if len(entries) == 0 {
		l.entries = nil
		return nil
	}
	l.entries = append([]T(nil), entries...)
	return nil
}

// Append adds one entry, keeping the list within its length limit.
func (l *FilterList[T]) Append(e T) error {
	if size := entriesSize(l.entries) + e.ByteSize(); size > MaxListLength {
		return fmt.Errorf("%w: %s list of %d bytes exceeds %d", ErrLimitExceeded, l.Marker(), size, MaxListLength)
	}
	l.entries = append(l.entries, e)
	return nil
}

func entriesSize[T Filter[T]](entries []T) int {
	n := 0
	for _, e := range entries {
		n += e.ByteSize()
	}
	return n
}

// ByteSize returns the encoded size including the header.
func (l FilterList[T]) ByteSize() int { return ListHeaderSize + entriesSize(l.entries) }

// Bytes returns the wire encoding.
func (l FilterList[T]) Bytes() []byte { return l.appendTo(make([]byte, 0, l.ByteSize())) }

func (l FilterList[T]) appendTo(b []byte) []byte {
	b = append(b, byte(l.Marker())<<4|l.flags, byte(entriesSize(l.entries)))
	for _, e := range l.entries {
		b = e.appendTo(b)
	}
	return b
}

// Matches reports whether any entry of l matches any entry of other. An empty
// list matches nothing.
func (l FilterList[T]) Matches(other FilterList[T]) bool {
	for _, a := range l.entries {
		for _, b := range other.entries {
			if a.Matches(b) {
				return true
			}
		}
	}
	return false
}

func (l FilterList[T]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s list flags=%#x entries=%d", l.Marker(), l.flags, len(l.entries))
	for _, e := range l.entries {
		fmt.Fprintf(&sb, "\n  %v", any(e))
	}
	return sb.String()
}
