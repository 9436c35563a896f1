package cec

import "errors"

// Parse errors. Each one means the buffer being parsed is malformed; callers
// drop that buffer and carry on.
var (
	ErrTruncatedInput   = errors.New("cec: truncated input")
	ErrMarkerMismatch   = errors.New("cec: list marker mismatch")
	ErrUnknownMarker    = errors.New("cec: unknown list marker")
	ErrDuplicateList    = errors.New("cec: duplicate filter list")
	ErrTrailingData     = errors.New("cec: entry overruns list length")
	ErrMissingKey       = errors.New("cec: missing key filter")
	ErrInvalidSendMode  = errors.New("cec: invalid send mode")
	ErrInvalidCmpLength = errors.New("cec: raw bytes cmp_length exceeds pattern")
)

// ErrLimitExceeded is returned by constructors and setters when a value does
// not fit its wire field. Parsing never returns it.
var ErrLimitExceeded = errors.New("cec: limit exceeded")
