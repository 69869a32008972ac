package index

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// HNSW construction defaults. M is the graph degree; the level multiplier
// 1/ln(M) gives the exponential layer distribution from Malkov & Yashunin
// (2016), so the expected share of nodes reaching level L is (1/M)^L.
const (
	DefaultM              = 32
	DefaultEfConstruction = 200
	DefaultEfSearch       = 16
)

// HNSWOptions configures graph construction. Zero fields take the package
// defaults.
type HNSWOptions struct {
	// M is the maximum neighbor count per node per layer. Layer 0 allows
	// 2*M, per the usual construction.
	M int

	// EfConstruction is the beam width used while inserting.
	EfConstruction int

	// EfSearch is the default beam width used while searching. Callers
	// can override it per query.
	EfSearch int

	// RandomSeed fixes the level draw for reproducible builds. Zero seeds
	// from the clock.
	RandomSeed int64
}

// HNSW is a hierarchical navigable small world graph. Upper layers hold
// exponentially fewer nodes with long-range links; layer 0 holds every node.
// Queries descend greedily through the upper layers and run a bounded
// best-first beam at layer 0.
//
// The graph is append-only: deletion happens above this package through
// tombstone sets, so neighbor lists never hold dangling IDs.
type HNSW struct {
	store
	metric Metric

	m              int
	maxM0          int
	efConstruction int
	efSearch       int
	levelMult      float64

	entryPoint int64
	maxLevel   int

	levels    []int32     // level assigned to each node
	neighbors [][][]int64 // per node, per level, neighbor IDs
	rng       *rand.Rand
}

// NewHNSW creates an empty graph index.
func NewHNSW(dim int, metric Metric, opts HNSWOptions) (*HNSW, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	if opts.M <= 0 {
		opts.M = DefaultM
	}
	if opts.EfConstruction <= 0 {
		opts.EfConstruction = DefaultEfConstruction
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = DefaultEfSearch
	}
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &HNSW{
		store:          newStore(dim),
		metric:         metric,
		m:              opts.M,
		maxM0:          2 * opts.M,
		efConstruction: opts.EfConstruction,
		efSearch:       opts.EfSearch,
		levelMult:      1.0 / math.Log(float64(opts.M)),
		entryPoint:     -1,
		maxLevel:       -1,
		rng:            rand.New(rand.NewSource(seed)),
	}, nil
}

func (h *HNSW) Metric() Metric {
	return h.metric
}

func (h *HNSW) Kind() Kind {
	return KindHNSW
}

// EntryPoint returns the graph entry node, or -1 when the index is empty.
func (h *HNSW) EntryPoint() int64 {
	return h.entryPoint
}

// MaxLevel returns the highest populated layer, or -1 when the index is
// empty.
func (h *HNSW) MaxLevel() int {
	return h.maxLevel
}

// EfSearch returns the default search beam width.
func (h *HNSW) EfSearch() int {
	return h.efSearch
}

// M returns the configured graph degree.
func (h *HNSW) M() int {
	return h.m
}

// Level returns the layer assigned to id, or -1 when id has never been
// assigned.
func (h *HNSW) Level(id int64) int {
	if id < 0 || id >= int64(len(h.levels)) {
		return -1
	}
	return int(h.levels[id])
}

// Neighbors copies the neighbor IDs of id at the given level into buf and
// returns it. The result is empty when id does not reach that level.
func (h *HNSW) Neighbors(level int, id int64, buf []int64) []int64 {
	buf = buf[:0]
	if id < 0 || id >= int64(len(h.neighbors)) || level < 0 {
		return buf
	}
	per := h.neighbors[id]
	if level >= len(per) {
		return buf
	}
	return append(buf, per[level]...)
}

// Add appends row-major vector data and links each new vector into the
// graph. Returns the ID assigned to the first new row.
func (h *HNSW) Add(vectors []float32) (int64, error) {
	first, err := h.appendRows(vectors)
	if err != nil {
		return 0, err
	}
	for id := first; id < int64(h.Len()); id++ {
		h.insert(id)
	}
	return first, nil
}

func (h *HNSW) insert(id int64) {
	level := h.randomLevel()
	h.levels = append(h.levels, int32(level))
	h.neighbors = append(h.neighbors, make([][]int64, level+1))

	if h.entryPoint < 0 {
		h.entryPoint = id
		h.maxLevel = level
		return
	}

	vec := h.Vector(id)
	curr := h.entryPoint
	currDist := h.metric.Distance(vec, h.Vector(curr))

	for l := h.maxLevel; l > level; l-- {
		curr, currDist = h.greedyDescend(vec, curr, currDist, l)
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(vec, curr, currDist, l, h.efConstruction)
		maxConn := h.m
		if l == 0 {
			maxConn = h.maxM0
		}
		for _, c := range candidates[:min(len(candidates), maxConn)] {
			h.link(l, id, c.id, maxConn)
			h.link(l, c.id, id, maxConn)
		}
		if len(candidates) > 0 {
			curr, currDist = candidates[0].id, candidates[0].dist
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = id
	}
}

func (h *HNSW) randomLevel() int {
	r := h.rng.Float64()
	for r == 0 {
		r = h.rng.Float64()
	}
	return int(math.Floor(-math.Log(r) * h.levelMult))
}

// neighborsAt returns the live adjacency slice, or nil when id does not
// reach the level. Internal use only; callers must not hold the result
// across a mutation.
func (h *HNSW) neighborsAt(id int64, level int) []int64 {
	per := h.neighbors[id]
	if level >= len(per) {
		return nil
	}
	return per[level]
}

// greedyDescend moves to the closest neighbor at the given level until no
// neighbor improves on the current distance.
func (h *HNSW) greedyDescend(query []float32, curr int64, currDist float32, level int) (int64, float32) {
	changed := true
	for changed {
		changed = false
		for _, nb := range h.neighborsAt(curr, level) {
			d := h.metric.Distance(query, h.Vector(nb))
			if d < currDist {
				curr, currDist = nb, d
				changed = true
			}
		}
	}
	return curr, currDist
}

// searchLayer runs a bounded best-first search at one level and returns up
// to ef candidates sorted nearest first.
func (h *HNSW) searchLayer(query []float32, entry int64, entryDist float32, level, ef int) []graphCandidate {
	visited := map[int64]struct{}{entry: {}}

	frontier := &nearestFirst{{id: entry, dist: entryDist}}
	heap.Init(frontier)
	results := &farthestFirst{{id: entry, dist: entryDist}}
	heap.Init(results)

	for frontier.Len() > 0 {
		c := heap.Pop(frontier).(graphCandidate)
		if c.dist > (*results)[0].dist && results.Len() >= ef {
			break
		}
		for _, nb := range h.neighborsAt(c.id, level) {
			if _, ok := visited[nb]; ok {
				continue
			}
			visited[nb] = struct{}{}
			d := h.metric.Distance(query, h.Vector(nb))
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(frontier, graphCandidate{id: nb, dist: d})
				heap.Push(results, graphCandidate{id: nb, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]graphCandidate, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(graphCandidate)
	}
	return out
}

// link appends dst to src's neighbor list at level. On overflow the list is
// pruned back to the maxConn closest neighbors.
func (h *HNSW) link(level int, src, dst int64, maxConn int) {
	per := h.neighbors[src]
	if level >= len(per) {
		return
	}
	conns := per[level]
	for _, c := range conns {
		if c == dst {
			return
		}
	}
	conns = append(conns, dst)
	if len(conns) > maxConn {
		srcVec := h.Vector(src)
		cands := make([]graphCandidate, len(conns))
		for i, c := range conns {
			cands[i] = graphCandidate{id: c, dist: h.metric.Distance(srcVec, h.Vector(c))}
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
		conns = conns[:0]
		for _, c := range cands[:maxConn] {
			conns = append(conns, c.id)
		}
	}
	per[level] = conns
}

type graphCandidate struct {
	id   int64
	dist float32
}

// nearestFirst is a min-heap of candidates ordered by distance.
type nearestFirst []graphCandidate

func (q nearestFirst) Len() int           { return len(q) }
func (q nearestFirst) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q nearestFirst) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nearestFirst) Push(x any)        { *q = append(*q, x.(graphCandidate)) }
func (q *nearestFirst) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// farthestFirst is a max-heap of candidates ordered by distance.
type farthestFirst []graphCandidate

func (q farthestFirst) Len() int           { return len(q) }
func (q farthestFirst) Less(i, j int) bool { return q[i].dist > q[j].dist }
func (q farthestFirst) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *farthestFirst) Push(x any)        { *q = append(*q, x.(graphCandidate)) }
func (q *farthestFirst) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
