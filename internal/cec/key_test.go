package cec

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseKey(t *testing.T) {
	want := Key{0x68, 0xC7, 0x27, 0x39, 0x0E, 0x2F, 0xBB, 0x04}
	for _, in := range []string{"68c727390e2fbb04", "68:C7:27:39:0E:2F:BB:04", "0x68c727390e2fbb04", "68-c7-27-39-0e-2f-bb-04"} {
		k, err := ParseKey(in)
		if err != nil {
			t.Errorf("ParseKey(%q): %v", in, err)
			continue
		}
		if k != want {
			t.Errorf("ParseKey(%q) = %s", in, k)
		}
	}
	for _, in := range []string{"", "68c727390e2fbb", "68c727390e2fbb0401", "zzc727390e2fbb04"} {
		if _, err := ParseKey(in); err == nil {
			t.Errorf("ParseKey(%q) should fail", in)
		}
	}
	if want.String() != "68c727390e2fbb04" {
		t.Errorf("String = %s", want)
	}
}

func TestKeyText(t *testing.T) {
	var k Key
	if err := k.UnmarshalText([]byte("0011223344556677")); err != nil {
		t.Fatal(err)
	}
	text, _ := k.MarshalText()
	if string(text) != "0011223344556677" {
		t.Errorf("MarshalText = %s", text)
	}
	if k.IsZero() || !(Key{}).IsZero() {
		t.Error("IsZero")
	}
}

func TestKeyFilter(t *testing.T) {
	k := Key{1, 2, 3, 4, 5, 6, 7, 8}
	f := NewKeyFilter(k)
	if !bytes.Equal(f.Bytes(), k[:]) {
		t.Errorf("Bytes = % x", f.Bytes())
	}

	parsed, n, err := ParseKeyFilter(append(k[:], 0xFF))
	if err != nil || n != KeyFilterSize || parsed.Key() != k {
		t.Errorf("ParseKeyFilter = %v, %d, %v", parsed, n, err)
	}
	if _, _, err := ParseKeyFilter(k[:7]); !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("short key error = %v", err)
	}

	other := NewKeyFilter(Key{})
	if !f.Matches(other) || !other.Matches(f) {
		t.Error("key filters always match")
	}

	f.SetKey(Key{9})
	if f.Key() != (Key{9}) {
		t.Errorf("SetKey: %s", f.Key())
	}
}
