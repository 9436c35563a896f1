// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors shared by the scanner, sources and reporters.
var (
	// Frame decoding errors
	ErrNotProbeRequest = errors.New("streetpass: not a probe request")
	ErrNoVendorElement = errors.New("streetpass: no vendor element with the streetpass oui")
	ErrBadFCS          = errors.New("streetpass: frame check sequence mismatch")
	ErrUnsupportedLink = errors.New("streetpass: unsupported link type")
	ErrPayloadTooLarge = errors.New("streetpass: payload does not fit one information element")
	ErrRateLimited     = errors.New("streetpass: source rate limited")

	// Capture errors
	ErrCaptureTimeout      = errors.New("streetpass: capture read timeout")
	ErrUnsupportedPlatform = errors.New("streetpass: capture type not supported on this platform")

	// Plugin errors
	ErrReporterNotFound = errors.New("streetpass: reporter not found")
	ErrPluginInitFailed = errors.New("streetpass: plugin init failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("streetpass: invalid configuration")
)
