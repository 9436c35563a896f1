// Package core defines the records and errors shared across packages.
// It has no dependencies outside the standard library.
package core

import "time"

// Encounter is a peer whose module filter matched the local one.
// It is the record handed to reporters and written to history.
type Encounter struct {
	// Envelope
	ID        string    `json:"id" cbor:"1,keyasint"`         // ksuid, sortable by time
	SessionID string    `json:"session_id" cbor:"2,keyasint"` // one per scan run
	Timestamp time.Time `json:"timestamp" cbor:"3,keyasint"`

	// Peer
	PeerMAC string `json:"peer_mac" cbor:"4,keyasint"`
	PeerKey string `json:"peer_key" cbor:"5,keyasint"` // hex identity key
	SSID    string `json:"ssid,omitempty" cbor:"6,keyasint,omitempty"`
	Signal  int8   `json:"signal_dbm,omitempty" cbor:"7,keyasint,omitempty"`

	// Raw material
	Filter   []byte `json:"filter" cbor:"8,keyasint"`                       // encoded module filter
	Frame    []byte `json:"frame,omitempty" cbor:"9,keyasint,omitempty"`    // whole captured frame
	LinkType int    `json:"link_type,omitempty" cbor:"10,keyasint,omitempty"` // gopacket link type of Frame

	// SessionKey is the derived CCMP key in hex, empty when crypto is not configured.
	SessionKey string `json:"session_key,omitempty" cbor:"11,keyasint,omitempty"`
}
