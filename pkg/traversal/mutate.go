package traversal

import (
	"sort"

	"github.com/helixkernel/kernel/pkg/graph"
	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/value"
)

// Mutating steps. Writes fan out to every index that carries derived state:
// adding or dropping a node keeps its BM25 document in step within the same
// transaction, so a commit is atomic across all three indices.

// AddN creates a node and yields it. The node's textual properties are
// indexed as its BM25 document atomically with the node write.
func (t *Traversal) AddN(label string, props value.PropertyMap) *Traversal {
	if t.err != nil {
		return t
	}
	id, err := t.eng.Graph.AddNode(t.tx, label, props)
	if err != nil {
		return t.fail(err)
	}
	node, err := t.eng.Graph.GetNode(t.tx, id)
	if err != nil {
		return t.fail(err)
	}
	if err := t.eng.Text.IndexDocument(t.tx, id, textFields(node.Properties)...); err != nil {
		return t.fail(err)
	}
	return t.derive(sliceSource([]TraversalValue{NodeValue(node)}))
}

// AddE creates an edge between from and to and yields it.
func (t *Traversal) AddE(label string, from, to ids.ID, props value.PropertyMap) *Traversal {
	if t.err != nil {
		return t
	}
	id, err := t.eng.Graph.AddEdge(t.tx, label, from, to, props)
	if err != nil {
		return t.fail(err)
	}
	edge, err := t.eng.Graph.GetEdge(t.tx, id)
	if err != nil {
		return t.fail(err)
	}
	return t.derive(sliceSource([]TraversalValue{EdgeValue(edge)}))
}

// AddV inserts a vector entry and yields it.
func (t *Traversal) AddV(label string, data []float32, props value.PropertyMap) *Traversal {
	if t.err != nil {
		return t
	}
	id, err := t.eng.Vectors.Insert(t.tx, label, data, props)
	if err != nil {
		return t.fail(err)
	}
	entry, err := t.eng.Vectors.Get(t.tx, id)
	if err != nil {
		return t.fail(err)
	}
	return t.derive(sliceSource([]TraversalValue{VectorValue(entry)}))
}

// UpsertN creates or updates a node matched by the named unique property and
// yields the resulting node.
func (t *Traversal) UpsertN(label, keyProp string, props value.PropertyMap) *Traversal {
	if t.err != nil {
		return t
	}
	existing, err := t.eng.Graph.LookupByProperty(t.tx, label, keyProp, props[keyProp])
	if err != nil && !kerr.Is(err, kerr.NotFound) {
		return t.fail(err)
	}
	if len(existing) > 0 {
		// Re-index the BM25 document around the property merge.
		old, err := t.eng.Graph.GetNode(t.tx, existing[0])
		if err != nil {
			return t.fail(err)
		}
		if err := t.eng.Text.RemoveDocument(t.tx, old.ID, textFields(old.Properties)...); err != nil {
			return t.fail(err)
		}
	}
	id, _, err := t.eng.Graph.UpsertNode(t.tx, label, keyProp, props)
	if err != nil {
		return t.fail(err)
	}
	node, err := t.eng.Graph.GetNode(t.tx, id)
	if err != nil {
		return t.fail(err)
	}
	if err := t.eng.Text.IndexDocument(t.tx, id, textFields(node.Properties)...); err != nil {
		return t.fail(err)
	}
	return t.derive(sliceSource([]TraversalValue{NodeValue(node)}))
}

// UpsertE yields the existing edge of label between from and to, updating its
// properties, or creates it when absent.
func (t *Traversal) UpsertE(label string, from, to ids.ID, props value.PropertyMap) *Traversal {
	if t.err != nil {
		return t
	}
	existing, err := t.findEdgeBetween(label, from, to)
	if err != nil {
		return t.fail(err)
	}
	if existing != ids.Zero {
		edge, err := t.eng.Graph.UpdateEdge(t.tx, existing, props)
		if err != nil {
			return t.fail(err)
		}
		return t.derive(sliceSource([]TraversalValue{EdgeValue(edge)}))
	}
	return t.AddE(label, from, to, props)
}

// UpsertV updates the entry's properties when id is known, or inserts a new
// entry when id is Zero.
func (t *Traversal) UpsertV(label string, id ids.ID, data []float32, props value.PropertyMap) *Traversal {
	if t.err != nil {
		return t
	}
	if id == ids.Zero {
		return t.AddV(label, data, props)
	}
	entry, err := t.eng.Vectors.UpdateProperties(t.tx, id, props)
	if err != nil {
		return t.fail(err)
	}
	return t.derive(sliceSource([]TraversalValue{VectorValue(entry)}))
}

// UpdateN merges partial into each node flowing through and yields the
// updated nodes, keeping their BM25 documents in step.
func (t *Traversal) UpdateN(partial value.PropertyMap) *Traversal {
	if t.err != nil {
		return t
	}
	upstream := t.src
	return t.derive(sourceFunc(func() (TraversalValue, bool, error) {
		tv, ok, err := upstream.Next()
		if err != nil || !ok {
			return TraversalValue{}, false, err
		}
		if tv.Kind != KindNode {
			return TraversalValue{}, false, kerr.New(kerr.TypeMismatch, "UpdateN requires node input")
		}
		if err := t.eng.Text.RemoveDocument(t.tx, tv.Node.ID, textFields(tv.Node.Properties)...); err != nil {
			return TraversalValue{}, false, err
		}
		node, err := t.eng.Graph.UpdateNode(t.tx, tv.Node.ID, partial)
		if err != nil {
			return TraversalValue{}, false, err
		}
		if err := t.eng.Text.IndexDocument(t.tx, node.ID, textFields(node.Properties)...); err != nil {
			return TraversalValue{}, false, err
		}
		return NodeValue(node), true, nil
	}))
}

// UpdateE merges partial into each edge flowing through.
func (t *Traversal) UpdateE(partial value.PropertyMap) *Traversal {
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
			return TraversalValue{}, false, kerr.New(kerr.TypeMismatch, "UpdateE requires edge input")
		}
		edge, err := t.eng.Graph.UpdateEdge(t.tx, tv.Edge.ID, partial)
		if err != nil {
			return TraversalValue{}, false, err
		}
		return EdgeValue(edge), true, nil
	}))
}

// UpdateV merges partial into each vector entry's scalar properties.
func (t *Traversal) UpdateV(partial value.PropertyMap) *Traversal {
	if t.err != nil {
		return t
	}
	upstream := t.src
	return t.derive(sourceFunc(func() (TraversalValue, bool, error) {
		tv, ok, err := upstream.Next()
		if err != nil || !ok {
			return TraversalValue{}, false, err
		}
		if tv.Kind != KindVector {
			return TraversalValue{}, false, kerr.New(kerr.TypeMismatch, "UpdateV requires vector input")
		}
		entry, err := t.eng.Vectors.UpdateProperties(t.tx, tv.Vector.ID, partial)
		if err != nil {
			return TraversalValue{}, false, err
		}
		return VectorValue(entry), true, nil
	}))
}

// Drop consumes the stream and destroys every element: nodes cascade to
// incident edges and their BM25 document, edges are removed with both
// adjacency rows, vectors are soft-deleted. Returns the number of elements
// dropped as the acknowledgement.
func (t *Traversal) Drop() (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	elems, err := t.Collect()
	if err != nil {
		return 0, err
	}
	for _, tv := range elems {
		switch tv.Kind {
		case KindNode:
			if err := t.eng.Text.RemoveDocument(t.tx, tv.Node.ID, textFields(tv.Node.Properties)...); err != nil {
				return 0, err
			}
			if err := t.eng.Graph.DropNode(t.tx, tv.Node.ID); err != nil {
				return 0, err
			}
		case KindEdge:
			if err := t.eng.Graph.DropEdge(t.tx, tv.Edge.ID); err != nil {
				return 0, err
			}
		case KindVector:
			if err := t.eng.Vectors.Delete(t.tx, tv.Vector.ID); err != nil {
				return 0, err
			}
		default:
			return 0, kerr.New(kerr.TypeMismatch, "Drop requires node, edge, or vector input")
		}
	}
	return len(elems), nil
}

// findEdgeBetween resolves the edge of label linking from -> to, or Zero.
func (t *Traversal) findEdgeBetween(label string, from, to ids.ID) (ids.ID, error) {
	iter := t.eng.Graph.Neighbours(t.tx, from, graph.Outgoing, label)
	defer iter.Close()
	for {
		adj, ok, err := iter.Next()
		if err != nil {
			return ids.Zero, err
		}
		if !ok {
			return ids.Zero, nil
		}
		if adj.Neighbour == to {
			return adj.EdgeID, nil
		}
	}
}

// textFields extracts a node's string properties in name order, forming its
// virtual BM25 document deterministically.
func textFields(props value.PropertyMap) []string {
	names := make([]string, 0, len(props))
	for name, v := range props {
		if _, ok := v.AsString(); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	fields := make([]string, 0, len(names))
	for _, name := range names {
		s, _ := props[name].AsString()
		fields = append(fields, s)
	}
	return fields
}
