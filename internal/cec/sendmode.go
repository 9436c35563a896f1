package cec

import (
	"fmt"
	"strconv"
	"strings"
)

// SendMode is the exchange direction a title filter advertises.
type SendMode uint8

const (
	Exchange SendMode = iota
	RecvOnly
	SendOnly
	SendRecv
)

var sendModeNames = [...]string{
	Exchange: "EXCHANGE",
	RecvOnly: "RECV_ONLY",
	SendOnly: "SEND_ONLY",
	SendRecv: "SEND_RECV",
}

// Valid reports whether m is one of the four defined modes.
func (m SendMode) Valid() bool { return m <= SendRecv }

func (m SendMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("SendMode(%d)", uint8(m))
	}
	return sendModeNames[m]
}

// IsCompatible reports whether a device advertising m can exchange with a
// device advertising other. The relation is not symmetric for invalid modes,
// which are never compatible with anything.
func (m SendMode) IsCompatible(other SendMode) bool {
	return IsCompatible(m, other)
}

// IsCompatible reports whether send modes a and b can exchange.
//
// EXCHANGE only pairs with EXCHANGE. A receiver needs a sender and a sender
// needs a receiver; SEND_RECV pairs with every mode except EXCHANGE.
func IsCompatible(a, b SendMode) bool {
	switch a {
	case Exchange:
		return b == Exchange
	case RecvOnly:
		return b == SendOnly || b == SendRecv
	case SendOnly:
		return b == RecvOnly || b == SendRecv
	case SendRecv:
		return b == RecvOnly || b == SendOnly || b == SendRecv
	default:
		return false
	}
}

// ParseSendMode accepts a mode name in any case, with '-' or '_' separators,
// or its numeric value.
func ParseSendMode(s string) (SendMode, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for i, n := range sendModeNames {
		if n == name {
			return SendMode(i), nil
		}
	}
	if n, err := strconv.ParseUint(name, 0, 8); err == nil && SendMode(n).Valid() {
		return SendMode(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSendMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m SendMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSendMode, uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SendMode) UnmarshalText(text []byte) error {
	v, err := ParseSendMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
