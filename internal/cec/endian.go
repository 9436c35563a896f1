package cec

import "encoding/binary"

// BE16 is a uint16 held in big-endian byte order.
type BE16 [2]byte

// NewBE16 encodes v in big-endian order.
func NewBE16(v uint16) BE16 {
	var b BE16
	binary.BigEndian.PutUint16(b[:], v)
	return b
}

// Uint16 returns the host value.
func (b BE16) Uint16() uint16 { return binary.BigEndian.Uint16(b[:]) }

// BE32 is a uint32 held in big-endian byte order.
type BE32 [4]byte

// NewBE32 encodes v in big-endian order.
func NewBE32(v uint32) BE32 {
	var b BE32
	binary.BigEndian.PutUint32(b[:], v)
	return b
}

// Uint32 returns the host value.
func (b BE32) Uint32() uint32 { return binary.BigEndian.Uint32(b[:]) }

// BE64 is a uint64 held in big-endian byte order.
type BE64 [8]byte

// NewBE64 encodes v in big-endian order.
func NewBE64(v uint64) BE64 {
	var b BE64
	binary.BigEndian.PutUint64(b[:], v)
	return b
}

// Uint64 returns the host value.
func (b BE64) Uint64() uint64 { return binary.BigEndian.Uint64(b[:]) }

// LE16 is a uint16 held in little-endian byte order.
type LE16 [2]byte

// NewLE16 encodes v in little-endian order.
func NewLE16(v uint16) LE16 {
	var b LE16
	binary.LittleEndian.PutUint16(b[:], v)
	return b
}

// Uint16 returns the host value.
func (b LE16) Uint16() uint16 { return binary.LittleEndian.Uint16(b[:]) }

// LE32 is a uint32 held in little-endian byte order.
type LE32 [4]byte

// NewLE32 encodes v in little-endian order.
func NewLE32(v uint32) LE32 {
	var b LE32
	binary.LittleEndian.PutUint32(b[:], v)
	return b
}

// Uint32 returns the host value.
func (b LE32) Uint32() uint32 { return binary.LittleEndian.Uint32(b[:]) }

// LE64 is a uint64 held in little-endian byte order.
type LE64 [8]byte

// NewLE64 encodes v in little-endian order.
func NewLE64(v uint64) LE64 {
	var b LE64
	binary.LittleEndian.PutUint64(b[:], v)
	return b
}

// Uint64 returns the host value.
func (b LE64) Uint64() uint64 { return binary.LittleEndian.Uint64(b[:]) }
