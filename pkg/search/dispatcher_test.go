package search

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
	"github.com/orneryd/annex/pkg/math/vector"
)

func randomMatrix(t *testing.T, n, dim int, seed int64) []float32 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	m := make([]float32, n*dim)
	for i := range m {
		m[i] = rng.Float32()*2 - 1
	}
	return m
}

func TestBatchDistancesL2(t *testing.T) {
	const n, dim = 37, 8
	query := randomMatrix(t, 1, dim, 1)
	cands := randomMatrix(t, n, dim, 2)

	out := make([]float32, n)
	BatchDistances(nil, query, cands, n, dim, index.MetricL2, out)

	for i := 0; i < n; i++ {
		row := cands[i*dim : (i+1)*dim]
		want := float32(vector.SquaredDistance(query, row))
		assert.InDelta(t, want, out[i], 1e-4, "row %d", i)
	}
}

func TestBatchDistancesIPNegates(t *testing.T) {
	const n, dim = 21, 16
	query := randomMatrix(t, 1, dim, 3)
	cands := randomMatrix(t, n, dim, 4)

	out := make([]float32, n)
	BatchDistances(nil, query, cands, n, dim, index.MetricIP, out)

	for i := 0; i < n; i++ {
		row := cands[i*dim : (i+1)*dim]
		want := -float32(vector.DotProduct(query, row))
		assert.InDelta(t, want, out[i], 1e-4, "row %d", i)
	}
}

func TestBatchDistancesEmpty(t *testing.T) {
	out := []float32{42}
	BatchDistances(nil, nil, nil, 0, 4, index.MetricL2, out)
	assert.Equal(t, float32(42), out[0], "empty batch must not touch out")
}

func TestBatchDistancesLeavesTailUntouched(t *testing.T) {
	const n, dim = 3, 2
	query := []float32{1, 0}
	cands := []float32{1, 0, 0, 1, 2, 0}

	out := []float32{-1, -1, -1, 99}
	BatchDistances(nil, query, cands, n, dim, index.MetricL2, out)
	assert.Equal(t, float32(99), out[3], "values past n must survive")
}

func TestBatchDistancesCountsCPUWork(t *testing.T) {
	mgr, err := gpu.NewManager(nil)
	require.NoError(t, err)

	const n, dim = 8, 4
	query := randomMatrix(t, 1, dim, 5)
	cands := randomMatrix(t, n, dim, 6)
	out := make([]float32, n)

	BatchDistances(mgr, query, cands, n, dim, index.MetricL2, out)
	BatchDistances(mgr, query, cands, n, dim, index.MetricIP, out)

	stats := mgr.Stats()
	assert.Equal(t, int64(2), stats.OperationsCPU)
	assert.Equal(t, int64(0), stats.OperationsGPU)
}

func TestResidentDistancesFallsBackToHost(t *testing.T) {
	const n, dim = 5, 4
	query := randomMatrix(t, 1, dim, 7)
	cands := randomMatrix(t, n, dim, 8)

	// Disabled manager plus a bogus handle: the host rows must carry the
	// batch.
	out := make([]float32, n)
	ResidentDistances(nil, query, 7, cands, n, dim, index.MetricL2, out)

	want := make([]float32, n)
	BatchDistances(nil, query, cands, n, dim, index.MetricL2, want)
	assert.Equal(t, want, out)
}

func TestMinGPUWorkThreshold(t *testing.T) {
	// 48k float comparisons is where transfer cost breaks even; callers
	// and docs rely on the exact value.
	assert.Equal(t, 49152, MinGPUWork)
}
