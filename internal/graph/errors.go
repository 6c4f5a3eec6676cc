package graph

import "errors"

// Sentinel errors for index queries.
var (
	// ErrNoIndexLoaded is returned by Handle queries before any log was loaded.
	ErrNoIndexLoaded = errors.New("no index loaded")

	// ErrIndexOutOfRange is returned when a query receives an object or
	// event index that the current index did not produce. This is a caller
	// bug, not a data problem.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUnknownType is returned when a type catalog is requested for a type
	// name that the log does not declare.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnknownIdentifier is returned when a string identifier does not
	// resolve to any object or event.
	ErrUnknownIdentifier = errors.New("unknown identifier")
)
