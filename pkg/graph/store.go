package graph

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/kv"
	"github.com/helixkernel/kernel/pkg/schema"
	"github.com/helixkernel/kernel/pkg/value"
)

// labelMemberProp is the reserved property-hash slot inside secondary_index
// that records label membership, enabling label scans without a full table
// walk. The NUL prefix keeps it out of the space of declarable names.
const labelMemberProp = "\x00label"

// Store exposes typed CRUD and adjacency iteration over the node/edge
// sub-stores. It is stateless beyond its wiring; every method runs inside
// the transaction it is handed.
type Store struct {
	schema *schema.Schema
	logger *zap.Logger
}

// New builds a Store validating against sch.
func New(sch *schema.Schema, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{schema: sch, logger: logger}
}

// Schema returns the schema the store validates against.
func (s *Store) Schema() *schema.Schema { return s.schema }

// AddNode validates properties against the label's declaration, applies
// defaults, checks unique-index conflicts, assigns a fresh ID, and writes
// the record plus every secondary-index row the label declares.
func (s *Store) AddNode(tx *kv.Txn, label string, props value.PropertyMap) (ids.ID, error) {
	def, err := s.schema.NodeDef(label)
	if err != nil {
		return ids.Zero, err
	}
	normalized, err := schema.ValidateProperties(def.Properties, props, "node "+label)
	if err != nil {
		return ids.Zero, err
	}
	if err := s.checkUnique(tx, label, def.Properties, normalized, ids.Zero); err != nil {
		return ids.Zero, err
	}

	id := ids.New()
	node := &Node{ID: id, Label: label, Properties: normalized}
	record, err := encodeNode(node)
	if err != nil {
		return ids.Zero, err
	}
	if err := tx.Set(kv.StoreNodes, id.Bytes(), record); err != nil {
		return ids.Zero, err
	}
	if err := s.writeSecondaryRows(tx, label, def.Properties, normalized, id); err != nil {
		return ids.Zero, err
	}
	return id, nil
}

// GetNode fetches one node by ID.
func (s *Store) GetNode(tx *kv.Txn, id ids.ID) (*Node, error) {
	data, err := tx.Get(kv.StoreNodes, id.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeNode(id, data)
}

// AddEdge verifies both endpoints exist with the declared From/To labels,
// enforces a UNIQUE edge declaration, writes the edge record, and inserts
// the out-side and in-side adjacency entries.
func (s *Store) AddEdge(tx *kv.Txn, label string, from, to ids.ID, props value.PropertyMap) (ids.ID, error) {
	def, err := s.schema.EdgeDef(label)
	if err != nil {
		return ids.Zero, err
	}
	normalized, err := schema.ValidateProperties(def.Properties, props, "edge "+label)
	if err != nil {
		return ids.Zero, err
	}

	fromNode, err := s.GetNode(tx, from)
	if err != nil {
		return ids.Zero, kerr.New(kerr.DanglingEdge, "source node does not exist")
	}
	toNode, err := s.GetNode(tx, to)
	if err != nil {
		return ids.Zero, kerr.New(kerr.DanglingEdge, "destination node does not exist")
	}
	if fromNode.Label != def.From || toNode.Label != def.To {
		return ids.Zero, kerr.New(kerr.SchemaViolation, fmt.Sprintf(
			"edge %s connects %s to %s, got %s to %s",
			label, def.From, def.To, fromNode.Label, toNode.Label))
	}

	labelHash := kv.LabelHash(label)
	if def.Unique {
		exists, err := s.edgeExistsBetween(tx, labelHash, from, to)
		if err != nil {
			return ids.Zero, err
		}
		if exists {
			return ids.Zero, kerr.New(kerr.UniqueViolation,
				fmt.Sprintf("edge %s already exists between endpoints", label))
		}
	}

	id := ids.New()
	edge := &Edge{ID: id, Label: label, From: from, To: to, Properties: normalized}
	record, err := encodeEdge(edge)
	if err != nil {
		return ids.Zero, err
	}
	if err := tx.Set(kv.StoreEdges, id.Bytes(), record); err != nil {
		return ids.Zero, err
	}
	if err := tx.Set(kv.StoreOutAdj, kv.PackAdjacency(from, labelHash, id, to), nil); err != nil {
		return ids.Zero, err
	}
	if err := tx.Set(kv.StoreInAdj, kv.PackAdjacency(to, labelHash, id, from), nil); err != nil {
		return ids.Zero, err
	}
	return id, nil
}

// GetEdge fetches one edge by ID.
func (s *Store) GetEdge(tx *kv.Txn, id ids.ID) (*Edge, error) {
	data, err := tx.Get(kv.StoreEdges, id.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeEdge(id, data)
}

// UpdateNode merges partial into the stored node's properties. Changing a
// unique-indexed property to a value another node already holds fails with
// UniqueViolation and leaves the node untouched.
func (s *Store) UpdateNode(tx *kv.Txn, id ids.ID, partial value.PropertyMap) (*Node, error) {
	node, err := s.GetNode(tx, id)
	if err != nil {
		return nil, err
	}
	def, err := s.schema.NodeDef(node.Label)
	if err != nil {
		return nil, err
	}
	if _, err := schema.ValidateProperties(def.Properties, partial, "node "+node.Label); err != nil {
		return nil, err
	}

	merged := node.Properties.Clone()
	for k, v := range partial {
		merged[k] = v
	}
	if err := s.checkUnique(tx, node.Label, def.Properties, merged, id); err != nil {
		return nil, err
	}

	// Re-point secondary rows whose value changed.
	if err := s.deleteSecondaryRows(tx, node.Label, def.Properties, node.Properties, id); err != nil {
		return nil, err
	}
	node.Properties = merged
	record, err := encodeNode(node)
	if err != nil {
		return nil, err
	}
	if err := tx.Set(kv.StoreNodes, id.Bytes(), record); err != nil {
		return nil, err
	}
	if err := s.writeSecondaryRows(tx, node.Label, def.Properties, merged, id); err != nil {
		return nil, err
	}
	return node, nil
}

// UpdateEdge merges partial into the stored edge's properties.
func (s *Store) UpdateEdge(tx *kv.Txn, id ids.ID, partial value.PropertyMap) (*Edge, error) {
	edge, err := s.GetEdge(tx, id)
	if err != nil {
		return nil, err
	}
	def, err := s.schema.EdgeDef(edge.Label)
	if err != nil {
		return nil, err
	}
	if _, err := schema.ValidateProperties(def.Properties, partial, "edge "+edge.Label); err != nil {
		return nil, err
	}
	for k, v := range partial {
		edge.Properties[k] = v
	}
	record, err := encodeEdge(edge)
	if err != nil {
		return nil, err
	}
	if err := tx.Set(kv.StoreEdges, id.Bytes(), record); err != nil {
		return nil, err
	}
	return edge, nil
}

// UpsertNode creates the node if no node of the label holds keyProp's value,
// or merges properties into the existing one. keyProp must be declared
// UNIQUE INDEX. Returns the node's ID and whether it was created.
func (s *Store) UpsertNode(tx *kv.Txn, label, keyProp string, props value.PropertyMap) (ids.ID, bool, error) {
	def, err := s.schema.NodeDef(label)
	if err != nil {
		return ids.Zero, false, err
	}
	if _, ok := schema.UniqueProperty(def.Properties, keyProp); !ok {
		return ids.Zero, false, kerr.New(kerr.SchemaViolation,
			fmt.Sprintf("upsert key %s is not a unique index on %s", keyProp, label))
	}
	keyValue, ok := props[keyProp]
	if !ok {
		return ids.Zero, false, kerr.New(kerr.SchemaViolation,
			"upsert properties must include the key property")
	}

	existing, err := s.LookupByProperty(tx, label, keyProp, keyValue)
	if err != nil {
		return ids.Zero, false, err
	}
	if len(existing) > 0 {
		if _, err := s.UpdateNode(tx, existing[0], props); err != nil {
			return ids.Zero, false, err
		}
		return existing[0], false, nil
	}
	id, err := s.AddNode(tx, label, props)
	return id, true, err
}

// DropNode removes the node, every incident edge in both directions, and all
// of its secondary-index rows.
func (s *Store) DropNode(tx *kv.Txn, id ids.ID) error {
	node, err := s.GetNode(tx, id)
	if err != nil {
		return err
	}

	for _, dir := range []Direction{Outgoing, Incoming} {
		adjs, err := s.collectAdjacency(tx, id, dir, nil)
		if err != nil {
			return err
		}
		for _, adj := range adjs {
			if err := s.DropEdge(tx, adj.EdgeID); err != nil && !kerr.Is(err, kerr.NotFound) {
				return err
			}
		}
	}

	def, err := s.schema.NodeDef(node.Label)
	if err != nil {
		return err
	}
	if err := s.deleteSecondaryRows(tx, node.Label, def.Properties, node.Properties, id); err != nil {
		return err
	}
	return tx.Delete(kv.StoreNodes, id.Bytes())
}

// DropEdge removes the edge record and both adjacency entries.
func (s *Store) DropEdge(tx *kv.Txn, id ids.ID) error {
	edge, err := s.GetEdge(tx, id)
	if err != nil {
		return err
	}
	labelHash := kv.LabelHash(edge.Label)
	if err := tx.Delete(kv.StoreOutAdj, kv.PackAdjacency(edge.From, labelHash, id, edge.To)); err != nil {
		return err
	}
	if err := tx.Delete(kv.StoreInAdj, kv.PackAdjacency(edge.To, labelHash, id, edge.From)); err != nil {
		return err
	}
	return tx.Delete(kv.StoreEdges, id.Bytes())
}

// Adjacency is one row of an adjacency index: the incident edge and the far
// endpoint.
type Adjacency struct {
	EdgeID    ids.ID
	Neighbour ids.ID
}

// AdjIter lazily walks one node's adjacency rows in key order.
type AdjIter struct {
	it *kv.Iterator
}

// Next yields the next adjacency row. ok is false when the scan is done.
func (a *AdjIter) Next() (adj Adjacency, ok bool, err error) {
	if !a.it.Valid() {
		return Adjacency{}, false, nil
	}
	_, _, edge, other, err := kv.UnpackAdjacency(a.it.Key())
	if err != nil {
		return Adjacency{}, false, err
	}
	a.it.Next()
	return Adjacency{EdgeID: edge, Neighbour: other}, true, nil
}

// Close releases the underlying iterator. Must be called before the
// transaction finishes.
func (a *AdjIter) Close() { a.it.Close() }

// Neighbours range-scans the appropriate adjacency store with the prefix
// (id, labelHash?) and returns a lazy iterator of edge/neighbour pairs.
func (s *Store) Neighbours(tx *kv.Txn, id ids.ID, dir Direction, edgeLabel string) *AdjIter {
	store := kv.StoreOutAdj
	if dir == Incoming {
		store = kv.StoreInAdj
	}
	var hashPtr *uint32
	if edgeLabel != "" {
		h := kv.LabelHash(edgeLabel)
		hashPtr = &h
	}
	return &AdjIter{it: tx.NewIterator(store, kv.AdjacencyPrefix(id, hashPtr))}
}

// collectAdjacency materializes an adjacency scan. Used by cascade deletes,
// which must not hold an iterator open across mutations.
func (s *Store) collectAdjacency(tx *kv.Txn, id ids.ID, dir Direction, labelHash *uint32) ([]Adjacency, error) {
	store := kv.StoreOutAdj
	if dir == Incoming {
		store = kv.StoreInAdj
	}
	it := tx.NewIterator(store, kv.AdjacencyPrefix(id, labelHash))
	defer it.Close()

	var out []Adjacency
	for ; it.Valid(); it.Next() {
		_, _, edge, other, err := kv.UnpackAdjacency(it.Key())
		if err != nil {
			return nil, err
		}
		out = append(out, Adjacency{EdgeID: edge, Neighbour: other})
	}
	return out, nil
}

// LookupByProperty resolves (label, property, value) through the secondary
// index. Returns zero, one (for UNIQUE), or many IDs.
func (s *Store) LookupByProperty(tx *kv.Txn, label, prop string, v value.Value) ([]ids.ID, error) {
	valBytes, ok := indexValueBytes(v)
	if !ok {
		return nil, kerr.New(kerr.SchemaViolation, "value kind is not indexable")
	}
	prefix := kv.SecondaryPrefix(kv.LabelHash(label), kv.LabelHash(prop), valBytes)
	it := tx.NewIterator(kv.StoreSecondary, prefix)
	defer it.Close()

	var out []ids.ID
	for ; it.Valid(); it.Next() {
		id, err := kv.UnpackSecondaryID(it.Key())
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// ScanLabel returns the IDs of every node carrying label, in ID (and thus
// insertion) order.
func (s *Store) ScanLabel(tx *kv.Txn, label string) ([]ids.ID, error) {
	prefix := kv.SecondaryPrefix(kv.LabelHash(label), kv.LabelHash(labelMemberProp), nil)
	it := tx.NewIterator(kv.StoreSecondary, prefix)
	defer it.Close()

	var out []ids.ID
	for ; it.Valid(); it.Next() {
		id, err := kv.UnpackSecondaryID(it.Key())
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// ScanEdges returns every edge carrying label, in ID order. Edges have no
// label-membership rows; this walks the edge store and filters.
func (s *Store) ScanEdges(tx *kv.Txn, label string) ([]*Edge, error) {
	it := tx.NewIterator(kv.StoreEdges, nil)
	defer it.Close()

	var out []*Edge
	for ; it.Valid(); it.Next() {
		id, err := ids.FromBytes(it.Key())
		if err != nil {
			return nil, err
		}
		data, err := it.Value()
		if err != nil {
			return nil, err
		}
		edge, err := decodeEdge(id, data)
		if err != nil {
			return nil, err
		}
		if edge.Label == label {
			out = append(out, edge)
		}
	}
	return out, nil
}

// checkUnique scans for another entity already holding any of props' values
// under a UNIQUE INDEX declaration. self is excluded so updates don't
// collide with themselves.
func (s *Store) checkUnique(tx *kv.Txn, label string, decls []schema.Property, props value.PropertyMap, self ids.ID) error {
	for _, decl := range decls {
		if decl.Index != schema.UniqueIndex {
			continue
		}
		v, ok := props[decl.Name]
		if !ok {
			continue
		}
		existing, err := s.LookupByProperty(tx, label, decl.Name, v)
		if err != nil {
			return err
		}
		for _, id := range existing {
			if id != self {
				return kerr.New(kerr.UniqueViolation, fmt.Sprintf(
					"%s.%s already holds this value", label, decl.Name))
			}
		}
	}
	return nil
}

// writeSecondaryRows inserts one secondary-index row per indexed property
// present in props, plus the label-membership row.
func (s *Store) writeSecondaryRows(tx *kv.Txn, label string, decls []schema.Property, props value.PropertyMap, id ids.ID) error {
	labelHash := kv.LabelHash(label)
	for _, decl := range schema.IndexedProperties(decls) {
		v, ok := props[decl.Name]
		if !ok {
			continue
		}
		valBytes, ok := indexValueBytes(v)
		if !ok {
			continue
		}
		key := kv.PackSecondary(labelHash, kv.LabelHash(decl.Name), valBytes, id)
		if err := tx.Set(kv.StoreSecondary, key, nil); err != nil {
			return err
		}
	}
	key := kv.PackSecondary(labelHash, kv.LabelHash(labelMemberProp), nil, id)
	return tx.Set(kv.StoreSecondary, key, nil)
}

// deleteSecondaryRows removes the rows writeSecondaryRows inserted for the
// given property snapshot.
func (s *Store) deleteSecondaryRows(tx *kv.Txn, label string, decls []schema.Property, props value.PropertyMap, id ids.ID) error {
	labelHash := kv.LabelHash(label)
	for _, decl := range schema.IndexedProperties(decls) {
		v, ok := props[decl.Name]
		if !ok {
			continue
		}
		valBytes, ok := indexValueBytes(v)
		if !ok {
			continue
		}
		key := kv.PackSecondary(labelHash, kv.LabelHash(decl.Name), valBytes, id)
		if err := tx.Delete(kv.StoreSecondary, key); err != nil {
			return err
		}
	}
	key := kv.PackSecondary(labelHash, kv.LabelHash(labelMemberProp), nil, id)
	return tx.Delete(kv.StoreSecondary, key)
}

// edgeExistsBetween reports whether any edge with labelHash already links
// from -> to.
func (s *Store) edgeExistsBetween(tx *kv.Txn, labelHash uint32, from, to ids.ID) (bool, error) {
	it := tx.NewIterator(kv.StoreOutAdj, kv.AdjacencyPrefix(from, &labelHash))
	defer it.Close()
	for ; it.Valid(); it.Next() {
		_, _, _, other, err := kv.UnpackAdjacency(it.Key())
		if err != nil {
			return false, err
		}
		if other == to {
			return true, nil
		}
	}
	return false, nil
}
