package traversal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixkernel/kernel/pkg/fulltext"
	"github.com/helixkernel/kernel/pkg/graph"
	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/kv"
	"github.com/helixkernel/kernel/pkg/schema"
	"github.com/helixkernel/kernel/pkg/value"
	"github.com/helixkernel/kernel/pkg/vector"
)

func testEngine(t *testing.T) (*Engine, *kv.Env) {
	t.Helper()
	env, err := kv.Open("", 1, nil, kv.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	sch := schema.New()
	require.NoError(t, sch.AddNode(&schema.Node{Label: "User", Properties: []schema.Property{
		{Name: "name", Type: value.KindString, Index: schema.UniqueIndex},
		{Name: "age", Type: value.KindInt64},
		{Name: "bio", Type: value.KindString},
	}}))
	require.NoError(t, sch.AddNode(&schema.Node{Label: "City", Properties: []schema.Property{
		{Name: "name", Type: value.KindString, Index: schema.UniqueIndex},
	}}))
	require.NoError(t, sch.AddEdge(&schema.Edge{Label: "Follows", From: "User", To: "User"}))
	require.NoError(t, sch.AddEdge(&schema.Edge{Label: "Road", From: "City", To: "City",
		Properties: []schema.Property{{Name: "distance", Type: value.KindFloat64}}}))
	require.NoError(t, sch.AddVector(&schema.Vector{Label: "Note", Dim: 3}))

	g := graph.New(sch, nil)
	v := vector.New(sch, vector.DefaultParams(), nil)
	f := fulltext.New(fulltext.DefaultConfig(), nil)
	return NewEngine(g, v, f, nil), env
}

// seedFollows creates Alice -Follows-> Bob -Follows-> Carol.
func seedFollows(t *testing.T, eng *Engine, env *kv.Env) (alice, bob, carol ids.ID) {
	t.Helper()
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		a, err := tr.AddN("User", value.PropertyMap{"name": value.String("Alice")}).First()
		require.NoError(t, err)
		b, err := tr.AddN("User", value.PropertyMap{"name": value.String("Bob")}).First()
		require.NoError(t, err)
		c, err := tr.AddN("User", value.PropertyMap{"name": value.String("Carol")}).First()
		require.NoError(t, err)
		alice, bob, carol = a.Node.ID, b.Node.ID, c.Node.ID
		if _, err := tr.AddE("Follows", alice, bob, nil).First(); err != nil {
			return err
		}
		_, err = tr.AddE("Follows", bob, carol, nil).First()
		return err
	}))
	return
}

func TestTwoHopOut(t *testing.T) {
	eng, env := testEngine(t)
	alice, _, carol := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("User", alice).Out("Follows").Out("Follows").Collect()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, carol, got[0].Node.ID)
		return nil
	}))
}

func TestInReversesOut(t *testing.T) {
	eng, env := testEngine(t)
	alice, _, carol := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("User", carol).In("Follows").In("Follows").Collect()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, alice, got[0].Node.ID)
		return nil
	}))
}

func TestOutEAndEndpoints(t *testing.T) {
	eng, env := testEngine(t)
	alice, bob, _ := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		edges, err := tr.N("User", alice).OutE("Follows").Collect()
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, KindEdge, edges[0].Kind)

		from, err := tr.N("User", alice).OutE("Follows").FromN().First()
		require.NoError(t, err)
		assert.Equal(t, alice, from.Node.ID)

		to, err := tr.N("User", alice).OutE("Follows").ToN().First()
		require.NoError(t, err)
		assert.Equal(t, bob, to.Node.ID)
		return nil
	}))
}

func TestEdgeScanAndLookup(t *testing.T) {
	eng, env := testEngine(t)
	alice, bob, _ := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)

		all, err := tr.E("Follows").Collect()
		require.NoError(t, err)
		assert.Len(t, all, 2)

		one, err := tr.E("Follows", all[0].Edge.ID).First()
		require.NoError(t, err)
		assert.Equal(t, all[0].Edge.ID, one.Edge.ID)
		return nil
	}))

	// UpsertE updates in place rather than duplicating.
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).UpsertE("Follows", alice, bob, nil).First()
		return err
	}))
	require.NoError(t, env.View(func(tx *kv.Txn) error {
		n, err := eng.Begin(tx).E("Follows").Count()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	}))
}

func TestWhereFilters(t *testing.T) {
	eng, env := testEngine(t)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		for name, age := range map[string]int64{"Alice": 30, "Bob": 20, "Carol": 40} {
			_, err := tr.AddN("User", value.PropertyMap{
				"name": value.String(name),
				"age":  value.Int64(age),
			}).First()
			require.NoError(t, err)
		}
		return nil
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)

		got, err := tr.N("User").Where(GT("age", value.Int64(25))).Collect()
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = tr.N("User").Where(And(
			GTE("age", value.Int64(20)),
			Not(EQ("name", value.String("Bob"))),
		)).Collect()
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = tr.N("User").Where(Or(
			EQ("name", value.String("Alice")),
			EQ("name", value.String("Bob")),
		)).Collect()
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = tr.N("User").Where(IsIn("name", value.Array([]value.Value{
			value.String("Carol"), value.String("Zed"),
		}))).Collect()
		require.NoError(t, err)
		assert.Len(t, got, 1)
		return nil
	}))
}

func TestWhereTypeMismatch(t *testing.T) {
	eng, env := testEngine(t)
	seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).N("User").Where(LT("name", value.Bool(true))).Collect()
		assert.True(t, kerr.Is(err, kerr.TypeMismatch))
		return nil
	}))
}

func TestExistsShortCircuits(t *testing.T) {
	eng, env := testEngine(t)
	_, _, carol := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		// Users who follow someone: Alice and Bob, not Carol.
		got, err := tr.N("User").Where(tr.Exists(func(sub *Traversal) *Traversal {
			return sub.Out("Follows")
		})).Collect()
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, tv := range got {
			assert.NotEqual(t, carol, tv.Node.ID)
		}
		return nil
	}))
}

func TestCountFirstRange(t *testing.T) {
	eng, env := testEngine(t)
	seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)

		n, err := tr.N("User").Count()
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		first, err := tr.N("User").First()
		require.NoError(t, err)
		assert.Equal(t, KindNode, first.Kind)

		empty, err := tr.N("User").Where(EQ("name", value.String("Zed"))).First()
		require.NoError(t, err)
		assert.Equal(t, KindEmpty, empty.Kind)

		window, err := tr.N("User").Range(1, 3).Collect()
		require.NoError(t, err)
		assert.Len(t, window, 2)

		none, err := tr.N("User").Range(2, 2).Collect()
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))
}

func TestIntersect(t *testing.T) {
	eng, env := testEngine(t)
	alice, bob, _ := seedFollows(t, eng, env)

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		// Users followed by Alice, intersected with users who follow someone
		// (Alice and Bob): exactly Bob.
		got, err := eng.Begin(tx).N("User", alice).Out("Follows").
			Intersect(func(sub *Traversal) *Traversal {
				return sub.N("User").Where(sub.Exists(func(s *Traversal) *Traversal {
					return s.Out("Follows")
				}))
			}).Collect()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, bob, got[0].Node.ID)
		return nil
	}))
}

func TestGroupByAndAggregateBy(t *testing.T) {
	eng, env := testEngine(t)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		for name, age := range map[string]int64{"Alice": 30, "Bob": 30, "Carol": 40} {
			_, err := tr.AddN("User", value.PropertyMap{
				"name": value.String(name),
				"age":  value.Int64(age),
			}).First()
			require.NoError(t, err)
		}
		return nil
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)

		grouped, err := tr.N("User").GroupBy("age").First()
		require.NoError(t, err)
		require.Equal(t, KindGroup, grouped.Kind)
		require.Len(t, grouped.Group.Buckets, 2)
		total := 0
		for _, b := range grouped.Group.Buckets {
			total += len(b.Members)
			assert.Equal(t, len(b.Members), b.Count)
		}
		assert.Equal(t, 3, total)

		agg, err := tr.N("User").AggregateBy("age").First()
		require.NoError(t, err)
		require.Equal(t, KindGroup, agg.Kind)
		for _, b := range agg.Group.Buckets {
			assert.Empty(t, b.Members)
			assert.Positive(t, b.Count)
		}
		return nil
	}))
}

func TestRemapProjection(t *testing.T) {
	eng, env := testEngine(t)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).AddN("User", value.PropertyMap{
			"name": value.String("Alice"),
			"age":  value.Int64(30),
		}).First()
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("User").Remap(Projection{
			Fields: map[string]Expr{
				"who":     Prop("name"),
				"decades": Math(value.OpDiv, Prop("age"), Const(value.Float64(10))),
			},
		}).First()
		require.NoError(t, err)
		require.Equal(t, KindMap, got.Kind)
		assert.Equal(t, value.String("Alice"), got.Map["who"])
		f, ok := got.Map["decades"].AsFloat64()
		require.True(t, ok)
		assert.Equal(t, 3.0, f)
		return nil
	}))
}

func TestRemapZeroByZeroYieldsEmptyRow(t *testing.T) {
	eng, env := testEngine(t)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).AddN("User", value.PropertyMap{
			"name": value.String("Alice"),
			"age":  value.Int64(0),
		}).First()
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("User").Remap(Projection{
			Fields: map[string]Expr{
				"bad": Math(value.OpDiv, Prop("age"), Const(value.Float64(0))),
			},
		}).First()
		require.NoError(t, err)
		assert.Equal(t, KindEmpty, got.Kind)
		return nil
	}))
}

func TestRemapIncludeRest(t *testing.T) {
	eng, env := testEngine(t)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).AddN("User", value.PropertyMap{
			"name": value.String("Alice"),
			"age":  value.Int64(30),
		}).First()
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("User").Remap(Projection{
			Fields:      map[string]Expr{"name": Const(value.String("redacted"))},
			IncludeRest: true,
		}).First()
		require.NoError(t, err)
		assert.Equal(t, value.String("redacted"), got.Map["name"])
		assert.Equal(t, value.Int64(30), got.Map["age"])
		return nil
	}))
}

func TestUpdateAndDrop(t *testing.T) {
	eng, env := testEngine(t)
	alice, bob, carol := seedFollows(t, eng, env)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).N("User", alice).
			UpdateN(value.PropertyMap{"age": value.Int64(31)}).Collect()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, value.Int64(31), got[0].Node.Properties["age"])
		return nil
	}))

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		n, err := eng.Begin(tx).N("User", bob).Drop()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		// Bob's edges died with him.
		got, err := tr.N("User", alice).Out("Follows").Collect()
		require.NoError(t, err)
		assert.Empty(t, got)
		got, err = tr.N("User", carol).In("Follows").Collect()
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	}))
}

func TestUpsertNCreateThenUpdate(t *testing.T) {
	eng, env := testEngine(t)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		first, err := tr.UpsertN("User", "name", value.PropertyMap{
			"name": value.String("Alice"),
			"age":  value.Int64(30),
		}).First()
		require.NoError(t, err)
		second, err := tr.UpsertN("User", "name", value.PropertyMap{
			"name": value.String("Alice"),
			"age":  value.Int64(31),
		}).First()
		require.NoError(t, err)
		assert.Equal(t, first.Node.ID, second.Node.ID)
		assert.Equal(t, value.Int64(31), second.Node.Properties["age"])

		n, err := tr.N("User").Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}))
}

func TestVectorSteps(t *testing.T) {
	eng, env := testEngine(t)

	var id ids.ID
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).AddV("Note", []float32{1, 0, 0}, nil).First()
		require.NoError(t, err)
		id = got.Vector.ID
		_, err = eng.Begin(tx).AddV("Note", []float32{0, 1, 0}, nil).First()
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)

		got, err := tr.SearchV("Note", []float32{1, 0, 0}, 1, 0).Collect()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].Vector.ID)

		all, err := tr.V("Note").Collect()
		require.NoError(t, err)
		assert.Len(t, all, 2)

		one, err := tr.V("Note", id).First()
		require.NoError(t, err)
		assert.Equal(t, id, one.Vector.ID)
		return nil
	}))
}

func TestSearchBM25YieldsNodes(t *testing.T) {
	eng, env := testEngine(t)

	var graphID ids.ID
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		got, err := tr.AddN("User", value.PropertyMap{
			"name": value.String("Alice"),
			"bio":  value.String("graph databases and traversal engines"),
		}).First()
		require.NoError(t, err)
		graphID = got.Node.ID
		_, err = tr.AddN("User", value.PropertyMap{
			"name": value.String("Bob"),
			"bio":  value.String("sourdough baking"),
		}).First()
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).SearchBM25("graph traversal", 5).Collect()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, graphID, got[0].Node.ID)
		return nil
	}))
}

func TestDropNodeRemovesBM25Document(t *testing.T) {
	eng, env := testEngine(t)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).AddN("User", value.PropertyMap{
			"name": value.String("Alice"),
			"bio":  value.String("unique searchable token xylophone"),
		}).First()
		return err
	}))
	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		_, err := eng.Begin(tx).N("User").Drop()
		return err
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).SearchBM25("xylophone", 5).Collect()
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	}))
}

func TestRerankMMRPrefersDiversity(t *testing.T) {
	eng, env := testEngine(t)

	require.NoError(t, env.Update(func(tx *kv.Txn) error {
		tr := eng.Begin(tx)
		// Two near-duplicates close to the query, one distinct direction.
		for _, v := range [][]float32{{1, 0, 0}, {0.999, 0.01, 0}, {0, 1, 0}} {
			if _, err := tr.AddV("Note", v, nil).First(); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, env.View(func(tx *kv.Txn) error {
		got, err := eng.Begin(tx).SearchV("Note", []float32{1, 0, 0}, 3, 0).
			RerankMMR(0.3).Collect()
		require.NoError(t, err)
		require.Len(t, got, 3)
		// With diversity weighted heavily the distinct vector moves ahead of
		// the second near-duplicate.
		assert.Equal(t, float32(0), got[1].Vector.Data[0])
		return nil
	}))
}
