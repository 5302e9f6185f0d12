package vector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/kv"
	"github.com/helixkernel/kernel/pkg/schema"
)

func testIndex(t *testing.T, dim int, params Params) (*Index, *kv.Env) {
	t.Helper()
	env, err := kv.Open("", 1, nil, kv.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	sch := schema.New()
	require.NoError(t, sch.AddVector(&schema.Vector{Label: "Doc", Dim: dim}))
	return New(sch, params, nil), env
}

func TestParamsClamped(t *testing.T) {
	p := Params{M: 1, EfConstruction: 10_000, EfSearch: 1}.clamp()
	assert.Equal(t, 5, p.M)
	assert.Equal(t, 10, p.MMax0)
	assert.Equal(t, 512, p.EfConstruction)
	assert.Equal(t, 10, p.EfSearch)
	assert.InDelta(t, 1.0/1.6094, p.ML, 0.01)
}

func TestInsertSearchSelf(t *testing.T) {
	ix, env := testIndex(t, 4, DefaultParams())

	vec := []float32{0.1, 0.2, 0.3, 0.4}
	var id ids.ID
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		var err error
		id, err = ix.Insert(tx, "Doc", vec, nil)
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := ix.Search(tx, "Doc", vec, 1, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].ID)
		assert.InDelta(t, 0.0, float64(got[0].Distance), 1e-6)
		return nil
	}))
}

func TestSearchEdgeCases(t *testing.T) {
	ix, env := testIndex(t, 4, DefaultParams())

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		// k = 1 on an empty index is empty, never an error.
		got, err := ix.Search(tx, "Doc", []float32{1, 2, 3, 4}, 1, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	}))

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		_, err := ix.Insert(tx, "Doc", []float32{1, 2, 3, 4}, nil)
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		// k = 0 is empty.
		got, err := ix.Search(tx, "Doc", []float32{1, 2, 3, 4}, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, got)

		// k beyond the live count returns everything live.
		got, err = ix.Search(tx, "Doc", []float32{1, 2, 3, 4}, 50, 0)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		return nil
	}))
}

func TestDimensionMismatch(t *testing.T) {
	ix, env := testIndex(t, 4, DefaultParams())

	err := env.Update(func(tx *kv.Txn) error {
		_, err := ix.Insert(tx, "Doc", []float32{1, 2}, nil)
		return err
	})
	assert.True(t, kerr.Is(err, kerr.DimensionMismatch))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		_, err := ix.Search(tx, "Doc", []float32{1, 2}, 1, 0)
		assert.True(t, kerr.Is(err, kerr.DimensionMismatch))
		return nil
	}))
}

func TestSoftDeleteHiddenFromSearch(t *testing.T) {
	ix, env := testIndex(t, 2, DefaultParams())

	var a, b ids.ID
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		var err error
		a, err = ix.Insert(tx, "Doc", []float32{0, 0}, nil)
		require.NoError(t, err)
		b, err = ix.Insert(tx, "Doc", []float32{1, 1}, nil)
		return err
	}))

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		return ix.Delete(tx, a)
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := ix.Search(tx, "Doc", []float32{0, 0}, 2, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b, got[0].ID)
		return nil
	}))
}

func TestSoftDeletedEntryPointSkipped(t *testing.T) {
	ix, env := testIndex(t, 2, DefaultParams())

	var first ids.ID
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		var err error
		// The first insert becomes the entry point.
		first, err = ix.Insert(tx, "Doc", []float32{0, 0}, nil)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			_, err = ix.Insert(tx, "Doc", []float32{float32(i + 1), 0}, nil)
			require.NoError(t, err)
		}
		return nil
	}))

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		return ix.Delete(tx, first)
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := ix.Search(tx, "Doc", []float32{0, 0}, 10, 0)
		require.NoError(t, err)
		assert.Len(t, got, 5)
		for _, e := range got {
			assert.NotEqual(t, first, e.ID)
			assert.False(t, e.Deleted)
		}
		return nil
	}))
}

func TestDeleteIdempotent(t *testing.T) {
	ix, env := testIndex(t, 2, DefaultParams())

	var id ids.ID
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		var err error
		id, err = ix.Insert(tx, "Doc", []float32{1, 2}, nil)
		return err
	}))
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		require.NoError(t, ix.Delete(tx, id))
		return ix.Delete(tx, id)
	}))
}

func TestResultsAscendingByDistance(t *testing.T) {
	ix, env := testIndex(t, 2, DefaultParams())

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		for i := 0; i < 20; i++ {
			_, err := ix.Insert(tx, "Doc", []float32{float32(i), 0}, nil)
			require.NoError(t, err)
		}
		return nil
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := ix.Search(tx, "Doc", []float32{0, 0}, 10, 64)
		require.NoError(t, err)
		require.Len(t, got, 10)
		for i := 1; i < len(got); i++ {
			assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
		}
		return nil
	}))
}

func TestExactRecall(t *testing.T) {
	ix, env := testIndex(t, 16, DefaultParams())

	rng := rand.New(rand.NewSource(42))
	const n = 200
	vecs := make([][]float32, n)
	idList := make([]ids.ID, n)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		for i := range vecs {
			v := make([]float32, 16)
			for j := range v {
				v[j] = rng.Float32()
			}
			vecs[i] = v
			id, err := ix.Insert(tx, "Doc", v, nil)
			require.NoError(t, err)
			idList[i] = id
		}
		return nil
	}))

	hits := 0
	require.NoError(t, env.View(func(tx *kv.Txn) error {
		for i, v := range vecs {
			got, err := ix.Search(tx, "Doc", v, 1, 200)
			require.NoError(t, err)
			if len(got) == 1 && got[0].ID == idList[i] {
				hits++
			}
		}
		return nil
	}))
	// Self-queries with a generous ef should recall nearly everything.
	assert.GreaterOrEqual(t, hits, n*99/100)
}

func TestDecodeTruncatedRecord(t *testing.T) {
	_, err := decodeEntry(ids.New(), []byte{0, 3, 'D'})
	assert.True(t, kerr.Is(err, kerr.InvalidVectorData))

	// Header claims a longer vector than the record holds.
	rec, err2 := encodeEntry(&Entry{Label: "Doc", Data: []float32{1, 2, 3}})
	require.NoError(t, err2)
	_, err = decodeEntry(ids.New(), rec[:len(rec)-8])
	assert.True(t, kerr.Is(err, kerr.InvalidVectorData))
}

func TestCosineSelfSimilarity(t *testing.T) {
	p := DefaultParams()
	p.Distance = Cosine
	ix, env := testIndex(t, 3, p)

	vec := []float32{3, 4, 12}
	var id ids.ID
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		var err error
		id, err = ix.Insert(tx, "Doc", vec, nil)
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := ix.Search(tx, "Doc", vec, 1, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].ID)
		// Cosine distance of a vector against itself is zero (similarity 1).
		assert.InDelta(t, 0.0, float64(got[0].Distance), 1e-6)
		return nil
	}))
}
