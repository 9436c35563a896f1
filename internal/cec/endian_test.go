package cec

import (
	"bytes"
	"testing"
)

func TestEndianWrappers(t *testing.T) {
	if b := NewBE32(0x00051600); !bytes.Equal(b[:], []byte{0x00, 0x05, 0x16, 0x00}) {
		t.Errorf("NewBE32 bytes = % x", b[:])
	}
	if b := NewLE32(0x00051600); !bytes.Equal(b[:], []byte{0x00, 0x16, 0x05, 0x00}) {
		t.Errorf("NewLE32 bytes = % x", b[:])
	}
	if b := NewBE16(0xABCD); !bytes.Equal(b[:], []byte{0xAB, 0xCD}) {
		t.Errorf("NewBE16 bytes = % x", b[:])
	}
	if b := NewLE16(0xABCD); !bytes.Equal(b[:], []byte{0xCD, 0xAB}) {
		t.Errorf("NewLE16 bytes = % x", b[:])
	}
	if b := NewBE64(0x0102030405060708); b[0] != 0x01 || b[7] != 0x08 {
		t.Errorf("NewBE64 bytes = % x", b[:])
	}
	if b := NewLE64(0x0102030405060708); b[0] != 0x08 || b[7] != 0x01 {
		t.Errorf("NewLE64 bytes = % x", b[:])
	}
}

func TestEndianRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 0xFF, 0x1234, 0xDEADBEEF, 0xFFFFFFFFFFFFFFFF} {
		if got := NewBE16(uint16(v)).Uint16(); got != uint16(v) {
			t.Errorf("BE16(%#x) = %#x", uint16(v), got)
		}
		if got := NewLE16(uint16(v)).Uint16(); got != uint16(v) {
			t.Errorf("LE16(%#x) = %#x", uint16(v), got)
		}
		if got := NewBE32(uint32(v)).Uint32(); got != uint32(v) {
			t.Errorf("BE32(%#x) = %#x", uint32(v), got)
		}
		if got := NewLE32(uint32(v)).Uint32(); got != uint32(v) {
			t.Errorf("LE32(%#x) = %#x", uint32(v), got)
		}
		if got := NewBE64(v).Uint64(); got != v {
			t.Errorf("BE64(%#x) = %#x", v, got)
		}
		if got := NewLE64(v).Uint64(); got != v {
			t.Errorf("LE64(%#x) = %#x", v, got)
		}
	}
}
