package annex

import (
	"fmt"

	"github.com/orneryd/annex/pkg/index"
)

// Add appends vectors to the named index and returns its new total count.
// IDs are assigned sequentially in slice order, starting from the current
// count. Every row must match the index dimension.
//
// An untrained IVFFlat index is trained on the first batch, which must
// therefore hold at least NList vectors.
func (db *DB) Add(name string, vectors [][]float32) (int64, error) {
	if err := db.checkClosed(); err != nil {
		return 0, err
	}
	if len(vectors) == 0 {
		return 0, fmt.Errorf("%w: no vectors", ErrInvalidInput)
	}

	wl, err := db.registry.GetWrite(name)
	if err != nil {
		return 0, err
	}
	defer wl.Release()

	idx := wl.Index()
	dim := idx.Dim()
	flat := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("vector %d: %w", i, &index.DimensionError{Expected: dim, Actual: len(v)})
		}
		flat = append(flat, v...)
	}

	if iv, ok := hostIndex(idx).(*index.IVFFlat); ok && !iv.Trained() {
		if err := iv.Train(flat); err != nil {
			return 0, fmt.Errorf("auto-train %q: %w", name, err)
		}
	}

	if _, err := idx.Add(flat); err != nil {
		return 0, fmt.Errorf("add to %q: %w", name, err)
	}
	return int64(idx.Len()), nil
}

// Delete tombstones ids in the named index and returns how many were
// newly deleted. Unknown and already-deleted IDs are skipped, not errors.
// The vectors stay in storage; searches filter them out.
func (db *DB) Delete(name string, ids []int64) (int, error) {
	if err := db.checkClosed(); err != nil {
		return 0, err
	}

	wl, err := db.registry.GetWrite(name)
	if err != nil {
		return 0, err
	}
	defer wl.Release()

	total := int64(wl.Index().Len())
	tomb := wl.Tombstones()

	removed := 0
	for _, id := range ids {
		if id < 0 || id >= total {
			continue
		}
		if tomb.Contains(uint64(id)) {
			continue
		}
		tomb.Add(uint64(id))
		removed++
	}
	return removed, nil
}
