// Package schema holds the label declarations the kernel validates every
// write against: node labels with typed properties, edge labels with From/To
// endpoint labels, and vector labels with a fixed dimension.
//
// Schema is additive. New labels and properties may be registered at any
// time; an existing property's type never changes. Defaults are applied
// when a record is written: a record stored before a property was declared
// does not carry that property, and reads do not fill its default in.
package schema

import (
	"fmt"

	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/value"
)

// IndexKind selects secondary indexing for one property.
type IndexKind uint8

const (
	NoIndex IndexKind = iota
	Index
	UniqueIndex
)

// Property declares one named, typed property on a label.
type Property struct {
	Name    string
	Type    value.Kind
	Default *value.Value // applied when a write omits the property
	Index   IndexKind
}

// Node declares a node label.
type Node struct {
	Label      string
	Properties []Property
}

// Edge declares an edge label. From and To name the node labels the edge may
// connect; Unique admits at most one edge of this label per (from, to) pair.
type Edge struct {
	Label      string
	From       string
	To         string
	Unique     bool
	Properties []Property
}

// Vector declares a vector label with its fixed dimension and optional
// scalar properties.
type Vector struct {
	Label      string
	Dim        int
	Properties []Property
}

// Schema is the full set of declared labels.
type Schema struct {
	Nodes   map[string]*Node
	Edges   map[string]*Edge
	Vectors map[string]*Vector
}

// New returns an empty schema ready for AddNode/AddEdge/AddVector.
func New() *Schema {
	return &Schema{
		Nodes:   make(map[string]*Node),
		Edges:   make(map[string]*Edge),
		Vectors: make(map[string]*Vector),
	}
}

// AddNode registers a node label. Re-registering an existing label is only
// legal when it adds properties; changing an existing property's type fails.
func (s *Schema) AddNode(n *Node) error {
	existing, ok := s.Nodes[n.Label]
	if !ok {
		s.Nodes[n.Label] = n
		return nil
	}
	return s.mergeProperties(&existing.Properties, n.Properties, "node "+n.Label)
}

// AddEdge registers an edge label.
func (s *Schema) AddEdge(e *Edge) error {
	existing, ok := s.Edges[e.Label]
	if !ok {
		s.Edges[e.Label] = e
		return nil
	}
	if existing.From != e.From || existing.To != e.To {
		return kerr.New(kerr.SchemaViolation,
			fmt.Sprintf("edge %s endpoints cannot change", e.Label))
	}
	return s.mergeProperties(&existing.Properties, e.Properties, "edge "+e.Label)
}

// AddVector registers a vector label.
func (s *Schema) AddVector(v *Vector) error {
	existing, ok := s.Vectors[v.Label]
	if !ok {
		s.Vectors[v.Label] = v
		return nil
	}
	if existing.Dim != v.Dim {
		return kerr.New(kerr.SchemaViolation,
			fmt.Sprintf("vector %s dimension cannot change", v.Label))
	}
	return s.mergeProperties(&existing.Properties, v.Properties, "vector "+v.Label)
}

func (s *Schema) mergeProperties(dst *[]Property, add []Property, where string) error {
	byName := make(map[string]Property, len(*dst))
	for _, p := range *dst {
		byName[p.Name] = p
	}
	for _, p := range add {
		old, ok := byName[p.Name]
		if !ok {
			*dst = append(*dst, p)
			byName[p.Name] = p
			continue
		}
		if old.Type != p.Type {
			return kerr.New(kerr.SchemaViolation,
				fmt.Sprintf("%s property %s cannot change type", where, p.Name))
		}
	}
	return nil
}

// NodeDef returns the declaration for label, or SchemaViolation if the label
// was never declared.
func (s *Schema) NodeDef(label string) (*Node, error) {
	n, ok := s.Nodes[label]
	if !ok {
		return nil, kerr.New(kerr.SchemaViolation, "unknown node label "+label)
	}
	return n, nil
}

// EdgeDef returns the declaration for label.
func (s *Schema) EdgeDef(label string) (*Edge, error) {
	e, ok := s.Edges[label]
	if !ok {
		return nil, kerr.New(kerr.SchemaViolation, "unknown edge label "+label)
	}
	return e, nil
}

// VectorDef returns the declaration for label.
func (s *Schema) VectorDef(label string) (*Vector, error) {
	v, ok := s.Vectors[label]
	if !ok {
		return nil, kerr.New(kerr.SchemaViolation, "unknown vector label "+label)
	}
	return v, nil
}

// ValidateProperties checks props against the declared properties, applies
// defaults for omitted properties that declare one, and returns the
// normalized map. Undeclared property names and type mismatches fail with
// SchemaViolation; the input map is never mutated.
func ValidateProperties(decls []Property, props value.PropertyMap, where string) (value.PropertyMap, error) {
	byName := make(map[string]Property, len(decls))
	for _, p := range decls {
		byName[p.Name] = p
	}

	for name, v := range props {
		decl, ok := byName[name]
		if !ok {
			return nil, kerr.New(kerr.SchemaViolation,
				fmt.Sprintf("%s: undeclared property %s", where, name))
		}
		if v.Kind != value.KindNull && v.Kind != decl.Type {
			return nil, kerr.New(kerr.SchemaViolation,
				fmt.Sprintf("%s: property %s has wrong type", where, name))
		}
	}

	out := props.Clone()
	for _, decl := range decls {
		if _, present := out[decl.Name]; !present && decl.Default != nil {
			out[decl.Name] = *decl.Default
		}
	}
	return out, nil
}

// IndexedProperties returns the declared properties carrying any index flag.
func IndexedProperties(decls []Property) []Property {
	var out []Property
	for _, p := range decls {
		if p.Index != NoIndex {
			out = append(out, p)
		}
	}
	return out
}

// UniqueProperty returns the declaration of name if it is UNIQUE INDEX.
func UniqueProperty(decls []Property, name string) (Property, bool) {
	for _, p := range decls {
		if p.Name == name && p.Index == UniqueIndex {
			return p, true
		}
	}
	return Property{}, false
}
