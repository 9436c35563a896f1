package cec

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
)

// ModuleFilter is the record a device broadcasts to describe the peers it
// wants to exchange with.
//
// The zero value has no filters and an all-zero key.
type ModuleFilter struct {
	rawBytes FilterList[RawBytesFilter]
	titles   FilterList[TitleFilter]
	keys     FilterList[KeyFilter]
}

// NewModuleFilter returns a filter carrying only the identity key.
func NewModuleFilter(key Key) *ModuleFilter {
	f := &ModuleFilter{}
	f.SetKey(key)
	return f
}

// Parse decodes a module filter. Lists may appear in any order but each kind
// at most once, and exactly one key must be present.
func Parse(b []byte) (*ModuleFilter, error) {
	var (
		f    ModuleFilter
		seen [MaxFlags + 1]bool
	)
	for off := 0; off < len(b); {
		marker := Marker(b[off] >> 4)
		if !marker.Valid() {
			return nil, fmt.Errorf("%w: %#x at offset %d", ErrUnknownMarker, uint8(marker), off)
		}
		if seen[marker] {
			return nil, fmt.Errorf("%w: second %s list at offset %d", ErrDuplicateList, marker, off)
		}
		seen[marker] = true

		var (
			n   int
			err error
		)
		switch marker {
		case MarkerRawBytes:
			f.rawBytes, n, err = ParseFilterList[RawBytesFilter](b[off:])
		case MarkerTitle:
			f.titles, n, err = ParseFilterList[TitleFilter](b[off:])
		case MarkerKey:
			f.keys, n, err = ParseFilterList[KeyFilter](b[off:])
		}
		if err != nil {
			return nil, fmt.Errorf("%s list at offset %d: %w", marker, off, err)
		}
		off += n
	}
	if n := f.keys.Count(); n != 1 {
		return nil, fmt.Errorf("%w: found %d key filters, want 1", ErrMissingKey, n)
	}
	return &f, nil
}

// Match reports whether a matches b. See ModuleFilter.Matches.
func Match(a, b *ModuleFilter) bool { return a.Matches(b) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (f *ModuleFilter) UnmarshalBinary(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (f *ModuleFilter) MarshalBinary() ([]byte, error) { return f.Bytes(), nil }

// Bytes returns the wire encoding: the raw bytes list and the title list when
// they hold entries, then the key list.
func (f *ModuleFilter) Bytes() []byte {
	b := make([]byte, 0, f.ByteSize())
	if f.rawBytes.Count() > 0 {
		b = f.rawBytes.appendTo(b)
	}
	if f.titles.Count() > 0 {
		b = f.titles.appendTo(b)
	}
	return f.keyList().appendTo(b)
}

// ByteSize returns the length of Bytes.
func (f *ModuleFilter) ByteSize() int {
	n := f.keyList().ByteSize()
	if f.rawBytes.Count() > 0 {
		n += f.rawBytes.ByteSize()
	}
	if f.titles.Count() > 0 {
		n += f.titles.ByteSize()
	}
	return n
}

// Matches reports whether the title lists match or the raw bytes lists
// match. The key never takes part. The receiver's send modes are checked
// against other's, so callers pass the local filter as the receiver.
func (f *ModuleFilter) Matches(other *ModuleFilter) bool {
	if f == nil || other == nil {
		return false
	}
	return f.titles.Matches(other.titles) || f.rawBytes.Matches(other.rawBytes)
}

func (f *ModuleFilter) keyList() FilterList[KeyFilter] {
	if f.keys.Count() == 0 {
		return FilterList[KeyFilter]{flags: f.keys.flags, entries: []KeyFilter{{}}}
	}
	return f.keys
}

// Key returns the identity key of the device that owns the filter.
func (f *ModuleFilter) Key() Key {
	if f.keys.Count() == 0 {
		return Key{}
	}
	return f.keys.entries[0].Key()
}

// SetKey replaces the identity key.
func (f *ModuleFilter) SetKey(k Key) {
	f.keys.entries = []KeyFilter{NewKeyFilter(k)}
}

// RawBytes returns the raw bytes list.
func (f *ModuleFilter) RawBytes() FilterList[RawBytesFilter] { return f.rawBytes }

// SetRawBytes replaces the raw bytes list.
func (f *ModuleFilter) SetRawBytes(l FilterList[RawBytesFilter]) {
	f.rawBytes = FilterList[RawBytesFilter]{flags: l.flags, entries: l.Filters()}
}

// SetRawBytesFilters replaces the raw bytes entries, keeping the list flags.
func (f *ModuleFilter) SetRawBytesFilters(filters ...RawBytesFilter) error {
	return f.rawBytes.SetFilters(filters)
}

// Titles returns the title list.
func (f *ModuleFilter) Titles() FilterList[TitleFilter] { return f.titles }

// SetTitles replaces the title list.
func (f *ModuleFilter) SetTitles(l FilterList[TitleFilter]) {
	f.titles = FilterList[TitleFilter]{flags: l.flags, entries: l.Filters()}
}

// SetTitleFilters replaces the title entries, keeping the list flags.
func (f *ModuleFilter) SetTitleFilters(filters ...TitleFilter) error {
	return f.titles.SetFilters(filters)
}

// KeyFlags returns the flags nibble of the key list.
func (f *ModuleFilter) KeyFlags() uint8 { return f.keys.flags }

// Clone returns a deep copy.
func (f *ModuleFilter) Clone() *ModuleFilter {
	c := *f
	c.rawBytes.entries = slices.Clone(f.rawBytes.entries)
	c.titles.entries = slices.Clone(f.titles.entries)
	c.keys.entries = slices.Clone(f.keys.entries)
	return &c
}

// Equal reports whether f and other encode to the same bytes.
func (f *ModuleFilter) Equal(other *ModuleFilter) bool {
	if f == nil || other == nil {
		return f == other
	}
	return bytes.Equal(f.Bytes(), other.Bytes())
}

func (f *ModuleFilter) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "module filter key=%s size=%d", f.Key(), f.ByteSize())
	if f.rawBytes.Count() > 0 {
		sb.WriteString("\n")
		sb.WriteString(f.rawBytes.String())
	}
	if f.titles.Count() > 0 {
		sb.WriteString("\n")
		sb.WriteString(f.titles.String())
	}
	return sb.String()
}
