package index

import (
	"fmt"
	"math"

	"github.com/orneryd/annex/pkg/simd"
)

// IVFFlat defaults. NList is the coarse quantizer size; NProbe trades recall
// for scan cost at query time.
const (
	DefaultNList  = 100
	DefaultNProbe = 8

	// kMeansIterations bounds centroid refinement during Train.
	kMeansIterations = 10
)

// IVFFlatOptions configures the coarse quantizer. Zero fields take the
// package defaults.
type IVFFlatOptions struct {
	NList  int
	NProbe int
}

// IVFFlat is an inverted-file index: vectors are bucketed under their
// nearest k-means centroid and search probes only the NProbe closest
// buckets. The quantizer must be trained before vectors can be added.
type IVFFlat struct {
	store
	metric Metric

	nlist     int
	nprobe    int
	centroids []float32 // row-major nlist*dim, set by Train
	lists     [][]int64 // vector IDs per centroid
	trained   bool
}

// NewIVFFlat creates an empty, untrained inverted-file index.
func NewIVFFlat(dim int, metric Metric, opts IVFFlatOptions) (*IVFFlat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	if opts.NList <= 0 {
		opts.NList = DefaultNList
	}
	if opts.NProbe <= 0 {
		opts.NProbe = DefaultNProbe
	}
	if opts.NProbe > opts.NList {
		opts.NProbe = opts.NList
	}
	return &IVFFlat{
		store:  newStore(dim),
		metric: metric,
		nlist:  opts.NList,
		nprobe: opts.NProbe,
		lists:  make([][]int64, opts.NList),
	}, nil
}

func (iv *IVFFlat) Metric() Metric {
	return iv.metric
}

func (iv *IVFFlat) Kind() Kind {
	return KindIVFFlat
}

// Trained reports whether the coarse quantizer has been computed.
func (iv *IVFFlat) Trained() bool {
	return iv.trained
}

// NList returns the number of inverted lists.
func (iv *IVFFlat) NList() int {
	return iv.nlist
}

// NProbe returns the number of inverted lists probed per search.
func (iv *IVFFlat) NProbe() int {
	return iv.nprobe
}

// Centroids returns the trained centroid matrix (row-major NList*Dim), or
// nil before training. The slice aliases index storage.
func (iv *IVFFlat) Centroids() []float32 {
	return iv.centroids
}

// List returns the vector IDs bucketed under centroid i. The slice aliases
// index storage.
func (iv *IVFFlat) List(i int) []int64 {
	if i < 0 || i >= len(iv.lists) {
		return nil
	}
	return iv.lists[i]
}

// Train computes NList centroids from row-major training data with a
// bounded number of k-means iterations. Training needs at least NList rows
// and happens once per index.
func (iv *IVFFlat) Train(vectors []float32) error {
	if iv.trained {
		return fmt.Errorf("ivfflat: already trained")
	}
	if len(vectors)%iv.dim != 0 {
		return fmt.Errorf("%w: %d floats with dimension %d", ErrInvalidVectors, len(vectors), iv.dim)
	}
	rows := len(vectors) / iv.dim
	if rows < iv.nlist {
		return fmt.Errorf("ivfflat: %d training vectors for %d lists, need at least %d", rows, iv.nlist, iv.nlist)
	}
	iv.centroids = kMeans(vectors, iv.dim, iv.nlist, kMeansIterations)
	iv.trained = true
	return nil
}

// Add appends row-major vector data, bucketing each row under its nearest
// centroid. Returns ErrNotTrained before Train has run.
func (iv *IVFFlat) Add(vectors []float32) (int64, error) {
	if !iv.trained {
		return 0, fmt.Errorf("%w: call Train before Add", ErrNotTrained)
	}
	first, err := iv.appendRows(vectors)
	if err != nil {
		return 0, err
	}
	for id := first; id < int64(iv.Len()); id++ {
		list := iv.nearestCentroid(iv.Vector(id))
		iv.lists[list] = append(iv.lists[list], id)
	}
	return first, nil
}

// nearestCentroid returns the centroid index closest to v under the index
// metric, so that bucketing at Add time and probing at query time agree.
func (iv *IVFFlat) nearestCentroid(v []float32) int {
	best, bestDist := 0, float32(math.MaxFloat32)
	for i := 0; i < iv.nlist; i++ {
		off := i * iv.dim
		d := iv.metric.Distance(v, iv.centroids[off:off+iv.dim])
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// kMeans clusters rows into k centroids with a fixed iteration budget.
// Initial centroids are sampled at a regular stride so training is
// deterministic for a given input. Assignment always uses squared L2;
// the metric only matters once the quantizer is fixed.
func kMeans(vectors []float32, dim, k, iters int) []float32 {
	rows := len(vectors) / dim
	centroids := make([]float32, k*dim)
	stride := rows / k
	for i := 0; i < k; i++ {
		src := i * stride * dim
		copy(centroids[i*dim:(i+1)*dim], vectors[src:src+dim])
	}

	assign := make([]int, rows)
	counts := make([]int, k)
	for iter := 0; iter < iters; iter++ {
		for r := 0; r < rows; r++ {
			row := vectors[r*dim : (r+1)*dim]
			best, bestDist := 0, float32(math.MaxFloat32)
			for c := 0; c < k; c++ {
				d := simd.SquaredDistance(row, centroids[c*dim:(c+1)*dim])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			assign[r] = best
		}

		next := make([]float32, k*dim)
		for i := range counts {
			counts[i] = 0
		}
		for r := 0; r < rows; r++ {
			c := assign[r]
			counts[c]++
			row := vectors[r*dim : (r+1)*dim]
			dst := next[c*dim : (c+1)*dim]
			for d := 0; d < dim; d++ {
				dst[d] += row[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Empty cluster: keep the previous centroid.
				copy(next[c*dim:(c+1)*dim], centroids[c*dim:(c+1)*dim])
				continue
			}
			inv := 1 / float32(counts[c])
			for d := 0; d < dim; d++ {
				next[c*dim+d] *= inv
			}
		}
		centroids = next
	}
	return centroids
}
