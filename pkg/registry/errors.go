package registry

import "errors"

// Registry error types.
var (
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
	ErrInvalidName   = errors.New("invalid index name")
)
