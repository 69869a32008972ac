package index

import "fmt"

// Flat is an exhaustive index: vectors live in one contiguous row-major
// matrix and every search scans all of them. Exact by construction, and the
// fastest option for small collections.
type Flat struct {
	store
	metric Metric
}

// NewFlat creates an empty Flat index.
func NewFlat(dim int, metric Metric) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	return &Flat{store: newStore(dim), metric: metric}, nil
}

func (f *Flat) Metric() Metric {
	return f.metric
}

func (f *Flat) Kind() Kind {
	return KindFlat
}

// Add appends row-major vector data and returns the first assigned ID.
func (f *Flat) Add(vectors []float32) (int64, error) {
	return f.appendRows(vectors)
}
