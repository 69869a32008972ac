package index

import (
	"errors"
	"fmt"
)

// Sentinel errors for index operations. Use errors.Is to check.
var (
	ErrUnknownMetric    = errors.New("unknown distance metric")
	ErrUnknownKind      = errors.New("unknown index kind")
	ErrInvalidDimension = errors.New("dimension must be positive")
	ErrNotTrained       = errors.New("index is not trained")
	ErrInvalidVectors   = errors.New("vector data is not a whole number of rows")
)

// DimensionError reports a vector whose dimensionality does not match the
// index. Use errors.As to recover the dimensions.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
