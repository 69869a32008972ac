package annex

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
	"github.com/orneryd/annex/pkg/registry"
)

func TestSearchFlat(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 8}))

	vecs := randVecs(50, 8, 10)
	_, err := db.Add("vex", vecs)
	require.NoError(t, err)

	// Querying with a stored vector must return it first at distance 0.
	hits, err := db.Search("vex", vecs[17], 5)
	require.NoError(t, err)
	require.Len(t, hits, 5)
	assert.Equal(t, int64(17), hits[0].ID)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-5)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
}

func TestSearchValidation(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 4}))

	_, err := db.Search("vex", make([]float32, 4), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = db.Search("missing", make([]float32, 4), 3)
	assert.ErrorIs(t, err, registry.ErrIndexNotFound)

	_, err = db.Search("vex", make([]float32, 3), 3)
	var dimErr *index.DimensionError
	assert.ErrorAs(t, err, &dimErr)
}

func TestSearchEmptyIndex(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 4}))

	hits, err := db.Search("vex", make([]float32, 4), 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchSkipsDeleted(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 8}))

	vecs := randVecs(20, 8, 11)
	_, err := db.Add("vex", vecs)
	require.NoError(t, err)

	_, err = db.Delete("vex", []int64{17})
	require.NoError(t, err)

	hits, err := db.Search("vex", vecs[17], 5)
	require.NoError(t, err)
	require.Len(t, hits, 5)
	for _, h := range hits {
		assert.NotEqual(t, int64(17), h.ID, "deleted vector returned")
	}
}

func TestSearchClampsKToLiveCount(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 4}))

	vecs := randVecs(5, 4, 12)
	_, err := db.Add("vex", vecs)
	require.NoError(t, err)
	_, err = db.Delete("vex", []int64{0, 1})
	require.NoError(t, err)

	hits, err := db.Search("vex", vecs[2], 50)
	require.NoError(t, err)
	assert.Len(t, hits, 3, "only live vectors can be returned")

	// Fully drained index searches clean.
	_, err = db.Delete("vex", []int64{2, 3, 4})
	require.NoError(t, err)
	hits, err = db.Search("vex", vecs[2], 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchHNSWThroughFacade(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("graph", CreateOptions{Dim: 8, Kind: index.KindHNSW}))

	vecs := randVecs(100, 8, 13)
	_, err := db.Add("graph", vecs)
	require.NoError(t, err)

	hits, err := db.Search("graph", vecs[37], 5, WithEfSearch(100))
	require.NoError(t, err)
	require.Len(t, hits, 5)
	assert.Equal(t, int64(37), hits[0].ID)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-5)
}

func TestIVFAutoTrain(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("buckets", CreateOptions{
		Dim:   4,
		Kind:  index.KindIVFFlat,
		NList: 4,
	}))

	// The first batch trains the quantizer, so it must cover NList.
	_, err := db.Add("buckets", randVecs(2, 4, 14))
	require.Error(t, err)

	vecs := randVecs(64, 4, 15)
	total, err := db.Add("buckets", vecs)
	require.NoError(t, err)
	assert.Equal(t, int64(64), total)

	hits, err := db.Search("buckets", vecs[9], 3, WithNProbe(4))
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, int64(9), hits[0].ID)
}

func TestSearchBatch(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 8}))

	vecs := randVecs(60, 8, 16)
	_, err := db.Add("vex", vecs)
	require.NoError(t, err)

	queries := randVecs(10, 8, 17)
	batch, err := db.SearchBatch(context.Background(), "vex", queries, 4)
	require.NoError(t, err)
	require.Len(t, batch, 10)

	for i, q := range queries {
		single, err := db.Search("vex", q, 4)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "query %d", i)
	}
}

func TestSearchBatchErrors(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 8}))
	_, err := db.Add("vex", randVecs(10, 8, 18))
	require.NoError(t, err)

	batch, err := db.SearchBatch(context.Background(), "vex", nil, 4)
	require.NoError(t, err)
	assert.Nil(t, batch)

	_, err = db.SearchBatch(context.Background(), "vex", randVecs(2, 8, 19), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// One malformed query fails the batch.
	queries := randVecs(4, 8, 20)
	queries[2] = queries[2][:5]
	_, err = db.SearchBatch(context.Background(), "vex", queries, 4)
	var dimErr *index.DimensionError
	assert.ErrorAs(t, err, &dimErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = db.SearchBatch(ctx, "vex", randVecs(64, 8, 21), 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransfersWithoutGPU(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 4}))

	assert.ErrorIs(t, db.ToGPU("vex"), gpu.ErrNotAvailable)
	assert.ErrorIs(t, db.ToCPU("vex"), gpu.ErrNotAvailable)

	assert.ErrorIs(t, db.ToGPU("missing"), registry.ErrIndexNotFound)

	_, ok := db.GPUInfo()
	assert.False(t, ok)
	assert.Equal(t, int64(0), db.GPUStats().OperationsGPU)
}

func TestConcurrentUse(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("a", CreateOptions{Dim: 8}))
	require.NoError(t, db.CreateIndex("b", CreateOptions{Dim: 8}))
	_, err := db.Add("a", randVecs(32, 8, 22))
	require.NoError(t, err)
	_, err = db.Add("b", randVecs(32, 8, 23))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := "a"
			if w%2 == 0 {
				name = "b"
			}
			queries := randVecs(20, 8, int64(100+w))
			for _, q := range queries {
				if _, err := db.Search(name, q, 3); err != nil {
					t.Errorf("search %s: %v", name, err)
					return
				}
			}
			if _, err := db.Add(name, randVecs(4, 8, int64(200+w))); err != nil {
				t.Errorf("add %s: %v", name, err)
			}
		}(w)
	}
	wg.Wait()

	infoA, err := db.IndexInfo("a")
	require.NoError(t, err)
	infoB, err := db.IndexInfo("b")
	require.NoError(t, err)
	assert.Equal(t, int64(32+4*4), infoA.Count)
	assert.Equal(t, int64(32+4*4), infoB.Count)
}
