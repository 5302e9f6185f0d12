// Package traversal executes typed, chainable step pipelines over the graph,
// vector, and full-text indices inside a single transaction.
//
// Steps are lazy iterators over a uniform TraversalValue and compose by
// consumption: each step pulls from its upstream only when its own consumer
// pulls from it. A pipeline does no work until a terminal step (Collect,
// Count, First, ...) drains it.
package traversal

import (
	"github.com/helixkernel/kernel/pkg/graph"
	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/value"
	"github.com/helixkernel/kernel/pkg/vector"
)

// Kind tags which variant of the carrier sum a TraversalValue holds.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindNode
	KindEdge
	KindVector
	KindScalar
	KindMap
	KindGroup
)

// TraversalValue is the uniform carrier flowing between pipeline steps.
// Exactly one payload field is meaningful, selected by Kind.
type TraversalValue struct {
	Kind   Kind
	Node   *graph.Node
	Edge   *graph.Edge
	Vector *vector.Entry
	Scalar value.Value
	Map    map[string]value.Value
	Group  *Group
}

// Group is the output of GROUP_BY / AGGREGATE_BY: hash-aggregated buckets
// keyed by the grouping properties.
type Group struct {
	Keys    []string
	Buckets []Bucket
}

// Bucket is one aggregation bucket. Members is populated by GROUP_BY;
// AGGREGATE_BY keeps only Count.
type Bucket struct {
	Key     map[string]value.Value
	Members []TraversalValue
	Count   int
}

func EmptyValue() TraversalValue                       { return TraversalValue{Kind: KindEmpty} }
func NodeValue(n *graph.Node) TraversalValue           { return TraversalValue{Kind: KindNode, Node: n} }
func EdgeValue(e *graph.Edge) TraversalValue           { return TraversalValue{Kind: KindEdge, Edge: e} }
func VectorValue(v *vector.Entry) TraversalValue       { return TraversalValue{Kind: KindVector, Vector: v} }
func ScalarValue(v value.Value) TraversalValue         { return TraversalValue{Kind: KindScalar, Scalar: v} }
func MapValue(m map[string]value.Value) TraversalValue { return TraversalValue{Kind: KindMap, Map: m} }
func GroupValue(g *Group) TraversalValue               { return TraversalValue{Kind: KindGroup, Group: g} }

// ID returns the entity identifier carried by a node, edge, or vector value.
func (tv TraversalValue) ID() (ids.ID, bool) {
	switch tv.Kind {
	case KindNode:
		return tv.Node.ID, true
	case KindEdge:
		return tv.Edge.ID, true
	case KindVector:
		return tv.Vector.ID, true
	default:
		return ids.Zero, false
	}
}

// Label returns the entity label, or "" for kinds that carry none.
func (tv TraversalValue) Label() string {
	switch tv.Kind {
	case KindNode:
		return tv.Node.Label
	case KindEdge:
		return tv.Edge.Label
	case KindVector:
		return tv.Vector.Label
	default:
		return ""
	}
}

// Property resolves a named property on the carried entity. Missing
// properties and kinds without a property map resolve to Null, so predicates
// over absent properties compare rather than fail.
func (tv TraversalValue) Property(name string) value.Value {
	var props value.PropertyMap
	switch tv.Kind {
	case KindNode:
		props = tv.Node.Properties
	case KindEdge:
		props = tv.Edge.Properties
	case KindVector:
		props = tv.Vector.Properties
	case KindMap:
		if v, ok := tv.Map[name]; ok {
			return v
		}
		return value.Null()
	case KindScalar:
		return value.Null()
	default:
		return value.Null()
	}
	if v, ok := props[name]; ok {
		return v
	}
	return value.Null()
}

// Properties returns the carried property map, or nil for kinds without one.
func (tv TraversalValue) Properties() value.PropertyMap {
	switch tv.Kind {
	case KindNode:
		return tv.Node.Properties
	case KindEdge:
		return tv.Edge.Properties
	case KindVector:
		return tv.Vector.Properties
	case KindMap:
		return value.PropertyMap(tv.Map)
	default:
		return nil
	}
}

// Source is the lazy iterator protocol every step implements. ok is false
// when the stream is exhausted; after that Next must keep returning false.
type Source interface {
	Next() (TraversalValue, bool, error)
}

// sourceFunc adapts a closure into a Source.
type sourceFunc func() (TraversalValue, bool, error)

func (f sourceFunc) Next() (TraversalValue, bool, error) { return f() }

// emptySource is the exhausted stream.
var emptySource = sourceFunc(func() (TraversalValue, bool, error) {
	return TraversalValue{}, false, nil
})

// sliceSource yields a materialized slice.
func sliceSource(items []TraversalValue) Source {
	i := 0
	return sourceFunc(func() (TraversalValue, bool, error) {
		if i >= len(items) {
			return TraversalValue{}, false, nil
		}
		item := items[i]
		i++
		return item, true, nil
	})
}
