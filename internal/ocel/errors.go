package ocel

import "errors"

var (
	// ErrUnsupportedFormat is returned when a file extension or format name
	// does not map to a known decoder.
	ErrUnsupportedFormat = errors.New("unsupported log format")

	// ErrMalformedLog is returned when a serialized log cannot be decoded.
	ErrMalformedLog = errors.New("malformed log")
)
