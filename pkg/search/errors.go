package search

import "errors"

// Sentinel errors returned by the search engine.
var (
	// ErrInvalidK indicates a non-positive result count.
	ErrInvalidK = errors.New("search: k must be positive")

	// ErrUnsupportedKind indicates an index type the engine cannot serve.
	ErrUnsupportedKind = errors.New("search: unsupported index kind")
)
