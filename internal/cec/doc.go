// Package cec implements the module filter record exchanged in proximity
// discovery frames, and the rule two devices use to decide whether their
// filters match.
//
// Wire layout (all multi-byte integers big-endian):
//
//	module filter  := [raw bytes list] [title list] key list
//	list           := header(2) entries(length)
//	header         := (marker<<4 | flags) length
//	raw bytes      := cmp_length(1) pattern(16)
//	title          := title_id(4) (send_mode<<4 | mve_count) mve(3)*
//	mve            := mask value expectation
//	key            := key(8)
//
// Markers: raw bytes 0x0, title 0x1, key 0xF. A module filter carries at most
// one raw bytes list, at most one title list and exactly one key list holding
// exactly one key. Empty optional lists are not written.
//
// Every function in this package is a pure transform over caller owned
// buffers and values; nothing blocks and nothing is shared, so values can be
// parsed and matched from any number of goroutines.
package cec
