package annex

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/annex/pkg/index"
	"github.com/orneryd/annex/pkg/registry"
	"github.com/orneryd/annex/pkg/search"
)

// SearchOption tunes a single query.
type SearchOption func(*search.Options)

// WithEfSearch overrides the HNSW beam width for this query. Values below
// k are raised to k.
func WithEfSearch(ef int) SearchOption {
	return func(o *search.Options) { o.EfSearch = ef }
}

// WithNProbe overrides the number of IVFFlat lists probed for this query.
func WithNProbe(n int) SearchOption {
	return func(o *search.Options) { o.NProbe = n }
}

// Search returns the k nearest live vectors to query in the named index,
// nearest first. Deleted vectors are filtered out and k is clamped to the
// live count, so searching a drained index returns an empty result set
// rather than an error.
//
// Under MetricL2 result distances are squared Euclidean distances; under
// MetricIP they are negated dot products. Smaller is closer under both.
func (db *DB) Search(name string, query []float32, k int, opts ...SearchOption) ([]search.Result, error) {
	if err := db.checkClosed(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, k)
	}

	rl, err := db.registry.GetRead(name)
	if err != nil {
		return nil, err
	}
	defer rl.Release()

	return db.searchLeased(rl, query, k, opts)
}

// SearchBatch runs one search per query in parallel and returns results
// in query order. Worker count is bounded by Config.BatchWorkers; the
// first failing query cancels the rest.
func (db *DB) SearchBatch(ctx context.Context, name string, queries [][]float32, k int, opts ...SearchOption) ([][]search.Result, error) {
	if err := db.checkClosed(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, k)
	}
	if len(queries) == 0 {
		return nil, nil
	}

	rl, err := db.registry.GetRead(name)
	if err != nil {
		return nil, err
	}
	defer rl.Release()

	results := make([][]search.Result, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(db.workers)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := db.searchLeased(rl, q, k, opts)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// searchLeased runs one query under an already-held read lease. Safe for
// concurrent calls on the same lease: index reads and tombstone lookups
// are read-only while the lease excludes writers.
func (db *DB) searchLeased(rl *registry.ReadLease, query []float32, k int, opts []SearchOption) ([]search.Result, error) {
	idx := rl.Index()
	if len(query) != idx.Dim() {
		return nil, &index.DimensionError{Expected: idx.Dim(), Actual: len(query)}
	}

	var o search.Options
	for _, opt := range opts {
		opt(&o)
	}
	o.Tombstones = rl.Tombstones()

	live := idx.Len() - int(o.Tombstones.GetCardinality())
	if live <= 0 {
		return nil, nil
	}
	if k > live {
		k = live
	}
	return db.engine.Search(idx, query, k, o)
}
