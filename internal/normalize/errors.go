package normalize

import "errors"

// Package-level errors. All are local, non-fatal: the offending message
// is dropped and counted, processing continues.
var (
	// ErrMalformedMessage indicates an unrecognized topic pattern or a
	// payload missing required fields.
	ErrMalformedMessage = errors.New("normalize: malformed message")
)
