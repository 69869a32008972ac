package annex

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
	"github.com/orneryd/annex/pkg/registry"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func randVecs(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func TestOpenClose(t *testing.T) {
	db, err := Open(nil)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "Close must be idempotent")

	err = db.CreateIndex("late", CreateOptions{Dim: 4})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Add("late", randVecs(1, 4, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Search("late", make([]float32, 4), 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, db.ListIndexes())
}

func TestCreateIndexDefaults(t *testing.T) {
	db := openTest(t)

	require.NoError(t, db.CreateIndex("plain", CreateOptions{Dim: 16}))

	info, err := db.IndexInfo("plain")
	require.NoError(t, err)
	assert.Equal(t, index.KindFlat, info.Kind)
	assert.Equal(t, "L2", info.Metric)
	assert.Equal(t, 16, info.Dim)
	assert.Equal(t, int64(0), info.Count)
	assert.Equal(t, gpu.BackendCPU, info.Backend)
}

func TestCreateIndexValidation(t *testing.T) {
	db := openTest(t)

	assert.ErrorIs(t, db.CreateIndex("", CreateOptions{Dim: 4}), ErrInvalidInput)
	assert.ErrorIs(t, db.CreateIndex("bad", CreateOptions{Dim: 0}), ErrInvalidInput)
	assert.ErrorIs(t, db.CreateIndex("bad", CreateOptions{Dim: -3}), ErrInvalidInput)
	assert.ErrorIs(t, db.CreateIndex("bad", CreateOptions{Dim: 4, Kind: "Annoy"}), ErrInvalidInput)

	require.NoError(t, db.CreateIndex("dup", CreateOptions{Dim: 4}))
	assert.ErrorIs(t, db.CreateIndex("dup", CreateOptions{Dim: 4}), registry.ErrIndexExists)
}

func TestDropIndex(t *testing.T) {
	db := openTest(t)

	require.NoError(t, db.CreateIndex("tmp", CreateOptions{Dim: 4}))
	require.NoError(t, db.DropIndex("tmp"))
	assert.ErrorIs(t, db.DropIndex("tmp"), registry.ErrIndexNotFound)

	// The name is reusable after a drop.
	require.NoError(t, db.CreateIndex("tmp", CreateOptions{Dim: 8}))
	info, err := db.IndexInfo("tmp")
	require.NoError(t, err)
	assert.Equal(t, 8, info.Dim)
}

func TestAdd(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 4}))

	total, err := db.Add("vex", randVecs(3, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	total, err = db.Add("vex", randVecs(2, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), total, "total grows across batches")

	_, err = db.Add("vex", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = db.Add("missing", randVecs(1, 4, 4))
	assert.ErrorIs(t, err, registry.ErrIndexNotFound)

	// A single short row rejects the whole batch.
	bad := randVecs(3, 4, 5)
	bad[1] = bad[1][:3]
	_, err = db.Add("vex", bad)
	var dimErr *index.DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)

	info, err := db.IndexInfo("vex")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Count, "failed batch must not add rows")
}

func TestDelete(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("vex", CreateOptions{Dim: 4}))
	_, err := db.Add("vex", randVecs(5, 4, 6))
	require.NoError(t, err)

	removed, err := db.Delete("vex", []int64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// Repeats and unknown IDs are skipped silently.
	removed, err = db.Delete("vex", []int64{1, 3, 99, -4})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	info, err := db.IndexInfo("vex")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Count)
	assert.Equal(t, int64(2), info.Deleted)

	_, err = db.Delete("missing", []int64{0})
	assert.ErrorIs(t, err, registry.ErrIndexNotFound)
}

func TestListIndexes(t *testing.T) {
	db := openTest(t)
	for _, name := range []string{"poems", "code", "faces"} {
		require.NoError(t, db.CreateIndex(name, CreateOptions{Dim: 4}))
	}

	infos := db.ListIndexes()
	require.Len(t, infos, 3)
	assert.Equal(t, "code", infos[0].Name)
	assert.Equal(t, "faces", infos[1].Name)
	assert.Equal(t, "poems", infos[2].Name)
}

func TestIndexInfoDescription(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.CreateIndex("doc", CreateOptions{Dim: 4, Description: "sentence embeddings"}))

	info, err := db.IndexInfo("doc")
	require.NoError(t, err)
	assert.Equal(t, "sentence embeddings", info.Description)

	_, err = db.IndexInfo("missing")
	assert.ErrorIs(t, err, registry.ErrIndexNotFound)
}
