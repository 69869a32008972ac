package search

import (
	"container/heap"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/orneryd/annex/pkg/index"
)

// searchFlat scores every stored vector in one batch. A device-resident
// matrix is used when the index carries one; otherwise the host rows go
// through the regular dispatcher.
func (e *Engine) searchFlat(f *index.Flat, resident uint64, query []float32, k int, opts Options) ([]Result, error) {
	n := f.Len()
	if n == 0 {
		return nil, nil
	}

	rows := f.Rows()
	dists := make([]float32, n)
	if resident != 0 {
		ResidentDistances(e.mgr, query, resident, rows, n, f.Dim(), f.Metric(), dists)
	} else {
		BatchDistances(e.mgr, query, rows, n, f.Dim(), f.Metric(), dists)
	}
	return selectNearest(dists, nil, k, opts.Tombstones), nil
}

// searchIVF probes the nprobe nearest inverted lists and scores their
// members in one batch.
func (e *Engine) searchIVF(iv *index.IVFFlat, query []float32, k int, opts Options) ([]Result, error) {
	if !iv.Trained() {
		return nil, fmt.Errorf("ivf search: %w", index.ErrNotTrained)
	}
	if iv.Len() == 0 {
		return nil, nil
	}

	nlist := iv.NList()
	nprobe := opts.NProbe
	if nprobe <= 0 {
		nprobe = iv.NProbe()
	}
	if nprobe > nlist {
		nprobe = nlist
	}

	dim := iv.Dim()
	metric := iv.Metric()

	// Rank centroids by distance to the query and keep the nprobe nearest.
	centDists := make([]float32, nlist)
	BatchDistances(e.mgr, query, iv.Centroids(), nlist, dim, metric, centDists)
	probes := selectNearest(centDists, nil, nprobe, nil)

	// Gather the members of the probed lists into one candidate batch.
	var ids []int64
	for _, p := range probes {
		ids = append(ids, iv.List(int(p.ID))...)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows := iv.AppendVectors(make([]float32, 0, len(ids)*dim), ids)
	dists := make([]float32, len(ids))
	BatchDistances(e.mgr, query, rows, len(ids), dim, metric, dists)
	return selectNearest(dists, ids, k, opts.Tombstones), nil
}

// selectNearest keeps the k nearest entries of dists in a bounded max-heap
// and returns them sorted nearest first, with tombstoned IDs dropped after
// selection. When ids is nil, position i scores ID int64(i). The heap is
// over-provisioned by the tombstone cardinality so the post-filter still
// leaves k survivors whenever that many live candidates were scored.
func selectNearest(dists []float32, ids []int64, k int, tomb *roaring64.Bitmap) []Result {
	limit := k
	if tomb != nil {
		limit += int(tomb.GetCardinality())
	}
	if limit > len(dists) {
		limit = len(dists)
	}

	best := &maxHeap{}
	for i, d := range dists {
		id := int64(i)
		if ids != nil {
			id = ids[i]
		}
		if best.Len() < limit {
			heap.Push(best, Result{ID: id, Distance: d})
			continue
		}
		if d < (*best)[0].Distance {
			heap.Push(best, Result{ID: id, Distance: d})
			heap.Pop(best)
		}
	}

	out := make([]Result, 0, best.Len())
	for best.Len() > 0 {
		r := heap.Pop(best).(Result)
		if tomb != nil && tomb.Contains(uint64(r.ID)) {
			continue
		}
		out = append(out, r)
	}
	sortResults(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}
