// Package index provides the in-memory vector index representations used by
// annex: Flat (exhaustive scan), HNSW (hierarchical navigable small world
// graph), and IVFFlat (inverted file over a k-means coarse quantizer).
//
// All kinds share a contiguous row-major float32 store with dense sequential
// IDs starting at 0. Deletion is handled above this package via tombstone
// sets, so an assigned ID stays valid for the lifetime of its index.
package index

import "fmt"

// Index is the surface shared by all index kinds.
//
// Implementations are not safe for concurrent use on their own; callers
// serialize access through the registry's per-index locks.
type Index interface {
	// Dim returns the vector dimensionality.
	Dim() int

	// Len returns the number of stored vectors.
	Len() int

	// Metric returns the distance metric vectors are compared under.
	Metric() Metric

	// Kind returns the layout tag.
	Kind() Kind

	// Vector returns the stored vector for id, or nil when id has never
	// been assigned. The slice aliases index storage; callers must not
	// modify it.
	Vector(id int64) []float32

	// AppendVectors appends the stored rows for ids to buf in order and
	// returns the extended buffer. IDs that have never been assigned are
	// skipped.
	AppendVectors(buf []float32, ids []int64) []float32

	// Add appends row-major vector data (length a multiple of Dim) and
	// returns the ID assigned to the first new row.
	Add(vectors []float32) (int64, error)
}

var (
	_ Index = (*Flat)(nil)
	_ Index = (*HNSW)(nil)
	_ Index = (*IVFFlat)(nil)
)

// store is the row-major vector storage shared by all index kinds.
type store struct {
	dim  int
	data []float32
}

func newStore(dim int) store {
	return store{dim: dim}
}

func (s *store) Dim() int {
	return s.dim
}

func (s *store) Len() int {
	return len(s.data) / s.dim
}

func (s *store) Vector(id int64) []float32 {
	if id < 0 || id >= int64(s.Len()) {
		return nil
	}
	off := int(id) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

func (s *store) AppendVectors(buf []float32, ids []int64) []float32 {
	for _, id := range ids {
		if v := s.Vector(id); v != nil {
			buf = append(buf, v...)
		}
	}
	return buf
}

// Rows returns the backing row-major matrix. The slice aliases index storage
// and is invalidated by the next Add.
func (s *store) Rows() []float32 {
	return s.data
}

// appendRows validates and copies row-major vector data, returning the ID of
// the first new row.
func (s *store) appendRows(vectors []float32) (int64, error) {
	if len(vectors)%s.dim != 0 {
		return 0, fmt.Errorf("%w: %d floats with dimension %d", ErrInvalidVectors, len(vectors), s.dim)
	}
	first := int64(s.Len())
	s.data = append(s.data, vectors...)
	return first, nil
}
