package traversal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/kv"
	"github.com/helixkernel/kernel/pkg/value"
)

func pathHops(t *testing.T, tv TraversalValue) int64 {
	t.Helper()
	require.Equal(t, KindMap, tv.Kind)
	hops, ok := tv.Map["hops"].AsFloat64()
	require.True(t, ok)
	return int64(hops)
}

func pathWeight(t *testing.T, tv TraversalValue) float64 {
	t.Helper()
	w, ok := tv.Map["weight"].AsFloat64()
	require.True(t, ok)
	return w
}

func TestBFSTwoHops(t *testing.T) {
	eng, env := testEngine(t)
	alice, _, carol := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("User", alice).
			ShortestPathBFS("Follows", carol).First()
		require.NoError(t, err)
		assert.Equal(t, int64(2), pathHops(t, got))

		nodes, _ := got.Map["nodes"].AsArray()
		assert.Len(t, nodes, 3)
		return nil
	}))
}

func TestBFSNoPath(t *testing.T) {
	eng, env := testEngine(t)
	alice, _, carol := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		// Follows edges point Alice -> Bob -> Carol; there is no path from
		// Carol back to Alice.
		_, err := eng.Begin(tx).N("User", carol).
			ShortestPathBFS("Follows", alice).First()
		assert.True(t, kerr.Is(err, kerr.NotFound))
		return nil
	}))
}

func TestBFSTerminatesOnCycle(t *testing.T) {
	eng, env := testEngine(t)
	alice, bob, carol := seedFollows(t, eng, env)

	// Close the cycle: Carol -> Alice.
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).AddE("Follows", carol, alice, nil).First()
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("User", alice).
			ShortestPathBFS("Follows", carol).First()
		require.NoError(t, err)
		assert.Equal(t, int64(2), pathHops(t, got))

		// An unreachable target on a cyclic graph still terminates.
		_, err = eng.Begin(tx).N("User", bob).
			ShortestPathBFS("Follows", ids.New()).First()
		assert.True(t, kerr.Is(err, kerr.NotFound))
		return nil
	}))
}

func TestBFSSelfPath(t *testing.T) {
	eng, env := testEngine(t)
	alice, _, _ := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("User", alice).
			ShortestPathBFS("Follows", alice).First()
		require.NoError(t, err)
		assert.Equal(t, int64(0), pathHops(t, got))
		return nil
	}))
}

// seedCities builds A-B (10), A-C (20), B-C (5).
func seedCities(t *testing.T, eng *Engine, env *kv.Env) (a, b, c ids.ID) {
	t.Helper()
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		for _, name := range []string{"A", "B", "C"} {
			_, err := tr.AddN("City", value.PropertyMap{"name": value.String(name)}).First()
			require.NoError(t, err)
		}
		ids3 := map[string]ids.ID{}
		for _, name := range []string{"A", "B", "C"} {
			got, err := tr.N("City").Where(EQ("name", value.String(name))).First()
			require.NoError(t, err)
			ids3[name] = got.Node.ID
		}
		a, b, c = ids3["A"], ids3["B"], ids3["C"]

		for _, road := range []struct {
			from, to ids.ID
			distance float64
		}{{a, b, 10}, {a, c, 20}, {b, c, 5}} {
			_, err := tr.AddE("Road", road.from, road.to, value.PropertyMap{
				"distance": value.Float64(road.distance),
			}).First()
			require.NoError(t, err)
		}
		return nil
	}))
	return
}

func TestDijkstraPicksLighterDetour(t *testing.T) {
	eng, env := testEngine(t)
	a, _, c := seedCities(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("City", a).
			ShortestPathDijkstras("Road", "distance", c).First()
		require.NoError(t, err)
		assert.Equal(t, int64(2), pathHops(t, got))
		assert.Equal(t, 15.0, pathWeight(t, got))
		return nil
	}))
}

func TestBFSAndDijkstraAgreeOnUnitWeights(t *testing.T) {
	eng, env := testEngine(t)

	var a, c ids.ID
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		nodes := make([]ids.ID, 4)
		for i, name := range []string{"A", "B", "C", "D"} {
			got, err := tr.AddN("City", value.PropertyMap{"name": value.String(name)}).First()
			require.NoError(t, err)
			nodes[i] = got.Node.ID
		}
		a, c = nodes[0], nodes[3]
		for _, pair := range [][2]ids.ID{
			{nodes[0], nodes[1]}, {nodes[1], nodes[3]},
			{nodes[0], nodes[2]}, {nodes[2], nodes[3]},
		} {
			_, err := tr.AddE("Road", pair[0], pair[1], value.PropertyMap{
				"distance": value.Float64(1),
			}).First()
			require.NoError(t, err)
		}
		return nil
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		bfs, err := tr.N("City", a).ShortestPathBFS("Road", c).First()
		require.NoError(t, err)
		dij, err := tr.N("City", a).ShortestPathDijkstras("Road", "distance", c).First()
		require.NoError(t, err)
		assert.Equal(t, pathHops(t, bfs), pathHops(t, dij))
		assert.Equal(t, float64(pathHops(t, bfs)), pathWeight(t, dij))
		return nil
	}))
}

func TestDijkstraInvalidWeightExpr(t *testing.T) {
	eng, env := testEngine(t)
	a, _, c := seedCities(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).N("City", a).
			ShortestPathDijkstras("Road", "distance * 2", c).First()
		assert.True(t, kerr.Is(err, kerr.InvalidWeight))

		_, err = eng.Begin(tx).N("City", a).
			ShortestPathDijkstras("Road", "", c).First()
		assert.True(t, kerr.Is(err, kerr.InvalidWeight))

		// A property that is not numeric on the edge.
		_, err = eng.Begin(tx).N("City", a).
			ShortestPathDijkstras("Road", "toll", c).First()
		assert.True(t, kerr.Is(err, kerr.InvalidWeight))
		return nil
	}))
}

func TestDepthCapExceeded(t *testing.T) {
	eng, env := testEngine(t)
	eng.MaxDepth = 1
	alice, _, carol := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).N("User", alice).
			ShortestPathBFS("Follows", carol).First()
		assert.True(t, kerr.Is(err, kerr.MaxDepthExceeded))
		return nil
	}))
}
