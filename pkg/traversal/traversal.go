package traversal

import (
	"go.uber.org/zap"

	"github.com/helixkernel/kernel/pkg/fulltext"
	"github.com/helixkernel/kernel/pkg/graph"
	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/kv"
	"github.com/helixkernel/kernel/pkg/vector"
)

// DefaultMaxDepth bounds shortest-path expansion on cyclic graphs.
const DefaultMaxDepth = 10_000

// Engine composes steps over the three indices. One Engine is wired per
// process; every pipeline runs inside a caller-owned transaction.
type Engine struct {
	Graph   *graph.Store
	Vectors *vector.Index
	Text    *fulltext.Index

	// MaxDepth caps BFS/Dijkstra expansion. Zero means DefaultMaxDepth.
	MaxDepth int

	logger *zap.Logger
}

// NewEngine wires a traversal engine over the given indices.
func NewEngine(g *graph.Store, v *vector.Index, t *fulltext.Index, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Graph: g, Vectors: v, Text: t, MaxDepth: DefaultMaxDepth, logger: logger}
}

func (e *Engine) maxDepth() int {
	if e.MaxDepth > 0 {
		return e.MaxDepth
	}
	return DefaultMaxDepth
}

// Begin opens a pipeline root bound to tx. The root yields nothing until a
// producing step (N, E, V, SearchV, SearchBM25, AddN, ...) is chained.
func (e *Engine) Begin(tx *kv.Txn) *Traversal {
	return &Traversal{eng: e, tx: tx, src: emptySource}
}

// Traversal is one step pipeline under construction. Every chaining method
// returns a new Traversal wrapping the previous step's source; errors are
// sticky and surface at the terminal step.
type Traversal struct {
	eng *Engine
	tx  *kv.Txn
	src Source
	err error
}

// fail returns a pipeline poisoned with err; terminal steps report it.
func (t *Traversal) fail(err error) *Traversal {
	return &Traversal{eng: t.eng, tx: t.tx, src: emptySource, err: err}
}

// derive continues the pipeline with a new source.
func (t *Traversal) derive(src Source) *Traversal {
	if t.err != nil {
		return t
	}
	return &Traversal{eng: t.eng, tx: t.tx, src: src}
}

// fromValue starts a sub-pipeline seeded with one element. Used by EXISTS
// and projection sub-expressions, which evaluate against the same
// transaction view.
func (t *Traversal) fromValue(tv TraversalValue) *Traversal {
	return &Traversal{eng: t.eng, tx: t.tx, src: sliceSource([]TraversalValue{tv})}
}

// N yields nodes: a point lookup when IDs are given, otherwise a label scan
// in insertion order.
func (t *Traversal) N(label string, nodeIDs ...ids.ID) *Traversal {
	if t.err != nil {
		return t
	}
	if len(nodeIDs) > 0 {
		return t.derive(t.lookupSource(nodeIDs, func(id ids.ID) (TraversalValue, error) {
			n, err := t.eng.Graph.GetNode(t.tx, id)
			if err != nil {
				return TraversalValue{}, err
			}
			if n.Label != label {
				return TraversalValue{}, kerr.New(kerr.NotFound, "node does not carry label "+label)
			}
			return NodeValue(n), nil
		}))
	}
	scanned, err := t.eng.Graph.ScanLabel(t.tx, label)
	if err != nil {
		return t.fail(err)
	}
	return t.derive(t.lookupSource(scanned, func(id ids.ID) (TraversalValue, error) {
		n, err := t.eng.Graph.GetNode(t.tx, id)
		if err != nil {
			return TraversalValue{}, err
		}
		return NodeValue(n), nil
	}))
}

// E yields edges: a point lookup when IDs are given, otherwise a scan of the
// edge store filtered to the label. Edges have no label-membership rows, so
// the scan walks the whole edge store; adjacency (OutE/InE) is the indexed
// way in.
func (t *Traversal) E(label string, edgeIDs ...ids.ID) *Traversal {
	if t.err != nil {
		return t
	}
	if len(edgeIDs) > 0 {
		return t.derive(t.lookupSource(edgeIDs, func(id ids.ID) (TraversalValue, error) {
			e, err := t.eng.Graph.GetEdge(t.tx, id)
			if err != nil {
				return TraversalValue{}, err
			}
			if e.Label != label {
				return TraversalValue{}, kerr.New(kerr.NotFound, "edge does not carry label "+label)
			}
			return EdgeValue(e), nil
		}))
	}
	edges, err := t.eng.Graph.ScanEdges(t.tx, label)
	if err != nil {
		return t.fail(err)
	}
	items := make([]TraversalValue, 0, len(edges))
	for _, e := range edges {
		items = append(items, EdgeValue(e))
	}
	return t.derive(sliceSource(items))
}

// V yields vector entries by ID, or every live entry of the label when no
// IDs are given. Soft-deleted entries are skipped.
func (t *Traversal) V(label string, vectorIDs ...ids.ID) *Traversal {
	if t.err != nil {
		return t
	}
	if len(vectorIDs) > 0 {
		return t.derive(t.lookupSource(vectorIDs, func(id ids.ID) (TraversalValue, error) {
			entry, err := t.eng.Vectors.Get(t.tx, id)
			if err != nil {
				return TraversalValue{}, err
			}
			if entry.Label != label {
				return TraversalValue{}, kerr.New(kerr.NotFound, "vector does not carry label "+label)
			}
			if entry.Deleted {
				return TraversalValue{}, kerr.New(kerr.DeletedVector, "vector is deleted")
			}
			return VectorValue(entry), nil
		}))
	}
	entries, err := t.eng.Vectors.ScanLabel(t.tx, label)
	if err != nil {
		return t.fail(err)
	}
	items := make([]TraversalValue, 0, len(entries))
	for _, entry := range entries {
		items = append(items, VectorValue(entry))
	}
	return t.derive(sliceSource(items))
}

// lookupSource yields one value per ID through fetch, lazily.
func (t *Traversal) lookupSource(idList []ids.ID, fetch func(ids.ID) (TraversalValue, error)) Source {
	i := 0
	return sourceFunc(func() (TraversalValue, bool, error) {
		if i >= len(idList) {
			return TraversalValue{}, false, nil
		}
		id := idList[i]
		i++
		tv, err := fetch(id)
		if err != nil {
			return TraversalValue{}, false, err
		}
		return tv, true, nil
	})
}

// Out walks outgoing edges with the given label and yields the destination
// nodes. Non-node inputs fail with TypeMismatch.
func (t *Traversal) Out(edgeLabel string) *Traversal {
	return t.adjacency(graph.Outgoing, edgeLabel, false)
}

// In walks incoming edges and yields the source nodes.
func (t *Traversal) In(edgeLabel string) *Traversal {
	return t.adjacency(graph.Incoming, edgeLabel, false)
}

// OutE yields the outgoing edges themselves, without fetching endpoints.
func (t *Traversal) OutE(edgeLabel string) *Traversal {
	return t.adjacency(graph.Outgoing, edgeLabel, true)
}

// InE yields the incoming edges.
func (t *Traversal) InE(edgeLabel string) *Traversal {
	return t.adjacency(graph.Incoming, edgeLabel, true)
}

func (t *Traversal) adjacency(dir graph.Direction, edgeLabel string, wantEdges bool) *Traversal {
	if t.err != nil {
		return t
	}
	upstream := t.src
	var iter *graph.AdjIter
	return t.derive(sourceFunc(func() (TraversalValue, bool, error) {
		for {
			if iter == nil {
				tv, ok, err := upstream.Next()
				if err != nil || !ok {
					return TraversalValue{}, false, err
				}
				if tv.Kind != KindNode {
					return TraversalValue{}, false, kerr.New(kerr.TypeMismatch, "adjacency step requires node input")
				}
				iter = t.eng.Graph.Neighbours(t.tx, tv.Node.ID, dir, edgeLabel)
			}
			adj, ok, err := iter.Next()
			if err != nil {
				iter.Close()
				return TraversalValue{}, false, err
			}
			if !ok {
				iter.Close()
				iter = nil
				continue
			}
			if wantEdges {
				edge, err := t.eng.Graph.GetEdge(t.tx, adj.EdgeID)
				if err != nil {
					iter.Close()
					return TraversalValue{}, false, err
				}
				return EdgeValue(edge), true, nil
			}
			node, err := t.eng.Graph.GetNode(t.tx, adj.Neighbour)
			if err != nil {
				iter.Close()
				return TraversalValue{}, false, err
			}
			return NodeValue(node), true, nil
		}
	}))
}

// FromN yields each edge's source node.
func (t *Traversal) FromN() *Traversal { return t.endpoint(true) }

// ToN yields each edge's destination node.
func (t *Traversal) ToN() *Traversal { return t.endpoint(false) }

func (t *Traversal) endpoint(from bool) *Traversal {
	if t.err != nil {
		return t
	}
	upstream := t.src
	return t.derive(sourceFunc(func() (TraversalValue, bool, error) {
		tv, ok, err := upstream.Next()
		if err != nil || !ok {
			return TraversalValue{}, false, err
		}
		if tv.Kind != KindEdge {
			return TraversalValue{}, false, kerr.New(kerr.TypeMismatch, "endpoint step requires edge input")
		}
		id := tv.Edge.To
		if from {
			id = tv.Edge.From
		}
		node, err := t.eng.Graph.GetNode(t.tx, id)
		if err != nil {
			return TraversalValue{}, false, err
		}
		return NodeValue(node), true, nil
	}))
}

// Collect drains the pipeline and materializes every element. This is the
// usual terminal step for read queries.
func (t *Traversal) Collect() ([]TraversalValue, error) {
	if t.err != nil {
		return nil, t.err
	}
	var out []TraversalValue
	for {
		tv, ok, err := t.src.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, tv)
	}
}

// Err reports the pipeline's sticky construction error without draining it.
func (t *Traversal) Err() error { return t.err }
