// Package search executes nearest-neighbor queries over the annex index
// kinds and routes their distance batches to the right compute tier.
//
// Two pieces live here. The batch dispatcher (BatchDistances,
// ResidentDistances) decides per batch whether the GPU is worth the trip
// and degrades silently through the CPU tiers. The Engine walks the index
// structures: greedy descent plus a bounded best-first beam for HNSW, a
// single full scan for Flat, and a centroid probe for IVFFlat. Deleted IDs
// are handled above the indexes as tombstone sets and filtered from
// results after traversal, so the walk itself never pays for deletions.
package search

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
)

// Result is a single query hit. Under MetricL2 Distance is the squared
// distance; under MetricIP it is the negated dot product. Smaller is
// closer under both.
type Result struct {
	ID       int64   `json:"id"`
	Distance float32 `json:"distance"`
}

// Options tune a single query.
type Options struct {
	// EfSearch overrides the beam width for HNSW traversal. Zero means
	// the index's own default; values below k are raised to k.
	EfSearch int

	// NProbe overrides the number of inverted lists probed on IVFFlat
	// indexes. Zero means the index default.
	NProbe int

	// Tombstones holds deleted IDs. They are dropped from results after
	// traversal, never consulted during it.
	Tombstones *roaring64.Bitmap
}

// Engine executes k-nearest-neighbor queries. It holds no index state, so
// one engine serves every index in a registry; the GPU manager is its only
// collaborator.
type Engine struct {
	mgr *gpu.Manager
}

// NewEngine creates a search engine backed by mgr. A nil manager is valid
// and keeps all distance work on the CPU kernels.
func NewEngine(mgr *gpu.Manager) *Engine {
	return &Engine{mgr: mgr}
}

// Search returns the k nearest live vectors to query, nearest first.
// Searching an empty index returns an empty result set and no error.
func (e *Engine) Search(idx index.Index, query []float32, k int, opts Options) ([]Result, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: nil index", ErrUnsupportedKind)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(query) != idx.Dim() {
		return nil, &index.DimensionError{Expected: idx.Dim(), Actual: len(query)}
	}

	// Device-resident indexes search through their host structure; the
	// resident matrix only accelerates full scans.
	var resident uint64
	host := idx
	if di, ok := idx.(*gpu.DeviceIndex); ok {
		resident = di.ResidentHandle()
		host = di.Host()
	}

	switch h := host.(type) {
	case *index.HNSW:
		return e.searchHNSW(h, query, k, opts)
	case *index.Flat:
		return e.searchFlat(h, resident, query, k, opts)
	case *index.IVFFlat:
		return e.searchIVF(h, query, k, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, host.Kind())
	}
}

// searchHNSW descends the upper layers greedily, then runs a bounded
// best-first beam over layer 0.
func (e *Engine) searchHNSW(h *index.HNSW, query []float32, k int, opts Options) ([]Result, error) {
	entry := h.EntryPoint()
	if h.Len() == 0 || entry < 0 {
		return nil, nil
	}

	ef := opts.EfSearch
	if ef <= 0 {
		ef = h.EfSearch()
	}
	if ef < k {
		ef = k
	}

	dim := h.Dim()
	metric := h.Metric()

	// Scratch reused across layers: neighbor IDs, gathered rows, distances.
	var (
		ids   []int64
		rows  []float32
		dists []float32
	)

	curr := entry
	currDist := metric.Distance(query, h.Vector(curr))

	// Greedy descent: on each upper layer, batch the current node's
	// neighbors through the dispatcher and move to the closest strictly
	// better one until no neighbor improves.
	for level := h.MaxLevel(); level > 0; level-- {
		for {
			ids = h.Neighbors(level, curr, ids[:0])
			if len(ids) == 0 {
				break
			}
			rows = h.AppendVectors(rows[:0], ids)
			dists = grow(dists, len(ids))
			BatchDistances(e.mgr, query, rows, len(ids), dim, metric, dists)

			improved := false
			for i, d := range dists {
				if d < currDist {
					currDist = d
					curr = ids[i]
					improved = true
				}
			}
			if !improved {
				break
			}
		}
	}

	// Layer 0: best-first beam bounded by ef. The frontier pops nearest
	// candidates; the result set keeps the ef closest seen so far, its
	// root being the current worst.
	visited := make(map[int64]struct{}, ef*4)
	visited[curr] = struct{}{}

	frontier := &minHeap{}
	results := &maxHeap{}
	heap.Push(frontier, Result{ID: curr, Distance: currDist})
	heap.Push(results, Result{ID: curr, Distance: currDist})

	var batch []int64
	for frontier.Len() > 0 {
		c := heap.Pop(frontier).(Result)
		if c.Distance > (*results)[0].Distance && results.Len() >= ef {
			break
		}

		// Collect unvisited neighbors, marking them visited at
		// collection time so a node is gathered at most once.
		ids = h.Neighbors(0, c.ID, ids[:0])
		batch = batch[:0]
		for _, id := range ids {
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = struct{}{}
			batch = append(batch, id)
		}
		if len(batch) == 0 {
			continue
		}

		rows = h.AppendVectors(rows[:0], batch)
		dists = grow(dists, len(batch))
		BatchDistances(e.mgr, query, rows, len(batch), dim, metric, dists)

		for i, id := range batch {
			d := dists[i]
			if results.Len() < ef || d < (*results)[0].Distance {
				heap.Push(frontier, Result{ID: id, Distance: d})
				heap.Push(results, Result{ID: id, Distance: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	// Drain, drop tombstoned IDs, return the k nearest.
	out := make([]Result, 0, results.Len())
	for results.Len() > 0 {
		r := heap.Pop(results).(Result)
		if opts.Tombstones != nil && opts.Tombstones.Contains(uint64(r.ID)) {
			continue
		}
		out = append(out, r)
	}
	sortResults(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// grow returns buf resized to n values, reallocating only when needed.
func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

// sortResults orders ascending by distance, breaking ties by ID so equal
// distances drain deterministically.
func sortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Distance != rs[j].Distance {
			return rs[i].Distance < rs[j].Distance
		}
		return rs[i].ID < rs[j].ID
	})
}
