package vector

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/kv"
	vmath "github.com/helixkernel/kernel/pkg/math/vector"
	"github.com/helixkernel/kernel/pkg/schema"
	"github.com/helixkernel/kernel/pkg/value"
)

// Meta keys carrying per-label index state.
const (
	metaEntryPrefix  = "hnsw/ep/"     // + label -> level (1B) + id (16B)
	metaParamsPrefix = "hnsw/params/" // + label -> JSON(Params)
)

// The layer byte caps the level a sampled assignment can reach. In practice
// levels stay in single digits for any realistic m.
const maxLevel = 255

// Index is the HNSW vector index over the shared environment. One Index
// serves every vector label; per-label parameters are pinned in the meta
// sub-store the first time a label sees an insert.
type Index struct {
	schema *schema.Schema
	params Params
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds an Index whose future labels adopt params (clamped).
func New(sch *schema.Schema, params Params, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		schema: sch,
		params: params.clamp(),
		logger: logger,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
}

// paramsFor returns the pinned parameters for label, pinning the index
// defaults on first use so a label's graph is never rebuilt under different
// construction constants.
func (ix *Index) paramsFor(tx *kv.Txn, label string) (Params, error) {
	key := []byte(metaParamsPrefix + label)
	data, err := tx.Get(kv.StoreMeta, key)
	if err == nil {
		var p Params
		if jerr := json.Unmarshal(data, &p); jerr != nil {
			return Params{}, kerr.Wrap(kerr.InvalidEncoding, "decoding hnsw params", jerr)
		}
		return p, nil
	}
	if !kerr.Is(err, kerr.NotFound) {
		return Params{}, err
	}
	if !tx.Writable() {
		return ix.params, nil
	}
	data, jerr := json.Marshal(ix.params)
	if jerr != nil {
		return Params{}, kerr.Wrap(kerr.InvalidEncoding, "encoding hnsw params", jerr)
	}
	if err := tx.Set(kv.StoreMeta, key, data); err != nil {
		return Params{}, err
	}
	return ix.params, nil
}

// entryPoint reads label's entry point. ok is false when the label has no
// vectors yet.
func (ix *Index) entryPoint(tx *kv.Txn, label string) (id ids.ID, level int, ok bool, err error) {
	data, gerr := tx.Get(kv.StoreMeta, []byte(metaEntryPrefix+label))
	if kerr.Is(gerr, kerr.NotFound) {
		return ids.Zero, 0, false, nil
	}
	if gerr != nil {
		return ids.Zero, 0, false, gerr
	}
	if len(data) != 17 {
		return ids.Zero, 0, false, kerr.New(kerr.InvalidEncoding, "entry point record has wrong length")
	}
	id, err = ids.FromBytes(data[1:])
	return id, int(data[0]), true, err
}

func (ix *Index) setEntryPoint(tx *kv.Txn, label string, id ids.ID, level int) error {
	data := make([]byte, 17)
	data[0] = byte(level)
	copy(data[1:], id[:])
	return tx.Set(kv.StoreMeta, []byte(metaEntryPrefix+label), data)
}

// Get fetches one entry by ID, deleted or not.
func (ix *Index) Get(tx *kv.Txn, id ids.ID) (*Entry, error) {
	data, err := tx.Get(kv.StoreVectorData, id.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeEntry(id, data)
}

// ScanLabel returns every live entry carrying label, in ID order.
func (ix *Index) ScanLabel(tx *kv.Txn, label string) ([]*Entry, error) {
	it := tx.NewIterator(kv.StoreVectorData, nil)
	defer it.Close()

	var out []*Entry
	for ; it.Valid(); it.Next() {
		id, err := ids.FromBytes(it.Key())
		if err != nil {
			return nil, err
		}
		data, err := it.Value()
		if err != nil {
			return nil, err
		}
		entry, err := decodeEntry(id, data)
		if err != nil {
			return nil, err
		}
		if entry.Label == label && !entry.Deleted {
			out = append(out, entry)
		}
	}
	return out, nil
}

// UpdateProperties merges partial into the entry's scalar properties. The
// vector data and its HNSW wiring are untouched.
func (ix *Index) UpdateProperties(tx *kv.Txn, id ids.ID, partial value.PropertyMap) (*Entry, error) {
	entry, err := ix.Get(tx, id)
	if err != nil {
		return nil, err
	}
	def, err := ix.schema.VectorDef(entry.Label)
	if err != nil {
		return nil, err
	}
	if _, err := schema.ValidateProperties(def.Properties, partial, "vector "+entry.Label); err != nil {
		return nil, err
	}
	if entry.Properties == nil {
		entry.Properties = value.PropertyMap{}
	}
	for k, v := range partial {
		entry.Properties[k] = v
	}
	return entry, ix.putEntry(tx, entry)
}

// Insert adds a vector under label and wires it into the label's HNSW graph.
func (ix *Index) Insert(tx *kv.Txn, label string, data []float32, props value.PropertyMap) (ids.ID, error) {
	def, err := ix.schema.VectorDef(label)
	if err != nil {
		return ids.Zero, err
	}
	if len(data) != def.Dim {
		return ids.Zero, kerr.New(kerr.DimensionMismatch, "vector dimension does not match label")
	}
	normalized, err := schema.ValidateProperties(def.Properties, props, "vector "+label)
	if err != nil {
		return ids.Zero, err
	}

	params, err := ix.paramsFor(tx, label)
	if err != nil {
		return ids.Zero, err
	}
	if params.Distance == Cosine {
		data = vmath.Normalize(data)
	}

	id := ids.New()
	level := ix.randomLevel(params.ML)
	entry := &Entry{ID: id, Label: label, Data: data, Level: level, Properties: normalized}
	if err := ix.putEntry(tx, entry); err != nil {
		return ids.Zero, err
	}
	if err := tx.Set(kv.StoreVectorLayer, kv.PackLayer(uint8(level), id), nil); err != nil {
		return ids.Zero, err
	}

	epID, epLevel, ok, err := ix.entryPoint(tx, label)
	if err != nil {
		return ids.Zero, err
	}
	if !ok {
		return id, ix.setEntryPoint(tx, label, id, level)
	}

	ep, err := ix.Get(tx, epID)
	if err != nil {
		return ids.Zero, err
	}

	// Greedy descent to level+1, keeping the single closest node per level.
	cur := ep.ID
	curDist := params.distance(data, ep.Data)
	for l := epLevel; l > level; l-- {
		cur, curDist, err = ix.greedyStep(tx, params, data, cur, curDist, l)
		if err != nil {
			return ids.Zero, err
		}
	}

	for l := min(level, epLevel); l >= 0; l-- {
		candidates, err := ix.searchLayer(tx, params, data, cur, params.EfConstruction, l)
		if err != nil {
			return ids.Zero, err
		}
		m := params.M
		if l == 0 {
			m = params.MMax0
		}
		neighbours, err := ix.selectHeuristic(tx, params, data, candidates, m)
		if err != nil {
			return ids.Zero, err
		}
		for _, nb := range neighbours {
			if err := tx.Set(kv.StoreVectorLinks, kv.PackLink(uint8(l), id, nb.id), kv.PackLinkDistance(nb.dist)); err != nil {
				return ids.Zero, err
			}
			if err := tx.Set(kv.StoreVectorLinks, kv.PackLink(uint8(l), nb.id, id), kv.PackLinkDistance(nb.dist)); err != nil {
				return ids.Zero, err
			}
			if err := ix.pruneLinks(tx, params, nb.id, l, m); err != nil {
				return ids.Zero, err
			}
		}
		if len(candidates) > 0 {
			cur = candidates[0].id
		}
	}

	if level > epLevel {
		return id, ix.setEntryPoint(tx, label, id, level)
	}
	return id, nil
}

// Delete soft-deletes the vector: the record is flagged and the HNSW links
// are retained so the graph stays navigable.
func (ix *Index) Delete(tx *kv.Txn, id ids.ID) error {
	entry, err := ix.Get(tx, id)
	if err != nil {
		return err
	}
	if entry.Deleted {
		return nil
	}
	entry.Deleted = true
	return ix.putEntry(tx, entry)
}

// Search returns the k nearest live vectors to query, in ascending distance
// order with ties broken by ID. ef overrides the label's default search
// width when positive.
func (ix *Index) Search(tx *kv.Txn, label string, query []float32, k, ef int) ([]*Entry, error) {
	def, err := ix.schema.VectorDef(label)
	if err != nil {
		return nil, err
	}
	if len(query) != def.Dim {
		return nil, kerr.New(kerr.DimensionMismatch, "query dimension does not match label")
	}
	if k <= 0 {
		return []*Entry{}, nil
	}

	params, err := ix.paramsFor(tx, label)
	if err != nil {
		return nil, err
	}
	if params.Distance == Cosine {
		query = vmath.Normalize(query)
	}
	if ef <= 0 {
		ef = params.EfSearch
	}
	if ef < k {
		ef = k
	}

	epID, epLevel, ok, err := ix.entryPoint(tx, label)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*Entry{}, nil
	}
	ep, err := ix.Get(tx, epID)
	if err != nil {
		return nil, err
	}
	if ep.Deleted {
		ep, err = ix.replacementEntryPoint(tx, label, epLevel)
		if err != nil {
			return nil, err
		}
		if ep == nil {
			return []*Entry{}, nil
		}
	}

	cur := ep.ID
	curDist := params.distance(query, ep.Data)
	for l := ep.Level; l > 0; l-- {
		cur, curDist, err = ix.greedyStep(tx, params, query, cur, curDist, l)
		if err != nil {
			return nil, err
		}
	}

	candidates, err := ix.searchLayer(tx, params, query, cur, ef, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*Entry, 0, k)
	for _, c := range candidates {
		entry, err := ix.Get(tx, c.id)
		if err != nil {
			return nil, err
		}
		if entry.Deleted {
			continue
		}
		entry.Distance = c.dist
		out = append(out, entry)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// replacementEntryPoint picks the next non-deleted vector of label at the
// highest populated layer, tie-broken by ID order. Returns nil when the
// label has no live vectors.
func (ix *Index) replacementEntryPoint(tx *kv.Txn, label string, topLevel int) (*Entry, error) {
	for l := topLevel; l >= 0; l-- {
		it := tx.NewIterator(kv.StoreVectorLayer, []byte{byte(l)})
		for ; it.Valid(); it.Next() {
			_, id, err := kv.UnpackLayer(it.Key())
			if err != nil {
				it.Close()
				return nil, err
			}
			entry, err := ix.Get(tx, id)
			if err != nil {
				it.Close()
				return nil, err
			}
			if entry.Label == label && !entry.Deleted {
				it.Close()
				return entry, nil
			}
		}
		it.Close()
	}
	return nil, nil
}

// greedyStep walks one layer greedily: repeatedly moves to the closest
// neighbour until no neighbour improves on the current distance.
func (ix *Index) greedyStep(tx *kv.Txn, params Params, query []float32, cur ids.ID, curDist float32, level int) (ids.ID, float32, error) {
	for {
		links, err := ix.readLinks(tx, level, cur)
		if err != nil {
			return ids.Zero, 0, err
		}
		changed := false
		for _, link := range links {
			nb, err := ix.Get(tx, link.id)
			if err != nil {
				if kerr.Is(err, kerr.NotFound) {
					continue
				}
				return ids.Zero, 0, err
			}
			if d := params.distance(query, nb.Data); d < curDist {
				cur, curDist = link.id, d
				changed = true
			}
		}
		if !changed {
			return cur, curDist, nil
		}
	}
}

// searchLayer is the candidate-pool routine: a min-heap of unvisited
// candidates, a max-heap of the best ef results, and a visited set. Returns
// the surviving pool in ascending distance order. Empty heaps terminate the
// loop cleanly; the routine never assumes a required value.
func (ix *Index) searchLayer(tx *kv.Txn, params Params, query []float32, entry ids.ID, ef, level int) ([]distItem, error) {
	start, err := ix.Get(tx, entry)
	if err != nil {
		if kerr.Is(err, kerr.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	entryDist := params.distance(query, start.Data)

	visited := map[ids.ID]bool{entry: true}
	candidates := newDistHeap(false)
	results := newDistHeap(true)
	candidates.push(distItem{id: entry, dist: entryDist})
	results.push(distItem{id: entry, dist: entryDist})

	for {
		closest, ok := candidates.pop()
		if !ok {
			break
		}
		if results.Len() >= ef {
			if worst, ok := results.peek(); ok && closest.dist > worst.dist {
				break
			}
		}

		links, err := ix.readLinks(tx, level, closest.id)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if visited[link.id] {
				continue
			}
			visited[link.id] = true

			nb, err := ix.Get(tx, link.id)
			if err != nil {
				if kerr.Is(err, kerr.NotFound) {
					continue
				}
				return nil, err
			}
			d := params.distance(query, nb.Data)
			worst, full := results.peek()
			if results.Len() < ef || !full || d < worst.dist {
				candidates.push(distItem{id: link.id, dist: d})
				results.push(distItem{id: link.id, dist: d})
				if results.Len() > ef {
					results.pop()
				}
			}
		}
	}

	out := make([]distItem, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item, _ := results.pop()
		out[i] = item
	}
	return out, nil
}

// selectHeuristic applies the diverse-neighbour rule: iterate candidates in
// ascending distance to the query and admit one only if no already-chosen
// neighbour is closer to it than the query is.
func (ix *Index) selectHeuristic(tx *kv.Txn, params Params, query []float32, candidates []distItem, m int) ([]distItem, error) {
	chosen := make([]distItem, 0, m)
	vectors := make(map[ids.ID][]float32, m)

	for _, c := range candidates {
		if len(chosen) == m {
			break
		}
		cand, err := ix.Get(tx, c.id)
		if err != nil {
			if kerr.Is(err, kerr.NotFound) {
				continue
			}
			return nil, err
		}
		diverse := true
		for _, r := range chosen {
			if params.distance(cand.Data, vectors[r.id]) < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			chosen = append(chosen, c)
			vectors[c.id] = cand.Data
		}
	}
	return chosen, nil
}

// link is one adjacency row read back from vector_links.
type link struct {
	id   ids.ID
	dist float32
}

// readLinks loads one vector's neighbour list at level.
func (ix *Index) readLinks(tx *kv.Txn, level int, id ids.ID) ([]link, error) {
	it := tx.NewIterator(kv.StoreVectorLinks, kv.LinkPrefix(uint8(level), id))
	defer it.Close()

	var out []link
	for ; it.Valid(); it.Next() {
		_, _, nb, err := kv.UnpackLink(it.Key())
		if err != nil {
			return nil, err
		}
		val, err := it.Value()
		if err != nil {
			return nil, err
		}
		d, err := kv.UnpackLinkDistance(val)
		if err != nil {
			return nil, err
		}
		out = append(out, link{id: nb, dist: d})
	}
	return out, nil
}

// pruneLinks re-selects owner's neighbour list at level when it exceeds m,
// using the same diversity heuristic as construction.
func (ix *Index) pruneLinks(tx *kv.Txn, params Params, owner ids.ID, level, m int) error {
	links, err := ix.readLinks(tx, level, owner)
	if err != nil {
		return err
	}
	if len(links) <= m {
		return nil
	}

	ownerEntry, err := ix.Get(tx, owner)
	if err != nil {
		return err
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].dist != links[j].dist {
			return links[i].dist < links[j].dist
		}
		return bytes.Compare(links[i].id[:], links[j].id[:]) < 0
	})
	items := make([]distItem, len(links))
	for i, l := range links {
		items[i] = distItem{id: l.id, dist: l.dist}
	}
	keep, err := ix.selectHeuristic(tx, params, ownerEntry.Data, items, m)
	if err != nil {
		return err
	}

	kept := make(map[ids.ID]bool, len(keep))
	for _, k := range keep {
		kept[k.id] = true
	}
	for _, l := range links {
		if !kept[l.id] {
			if err := tx.Delete(kv.StoreVectorLinks, kv.PackLink(uint8(level), owner, l.id)); err != nil {
				return err
			}
		}
	}
	return nil
}

// putEntry writes the record for entry.
func (ix *Index) putEntry(tx *kv.Txn, entry *Entry) error {
	record, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return tx.Set(kv.StoreVectorData, entry.ID.Bytes(), record)
}

// randomLevel samples a layer assignment from the geometric distribution
// with scale ml.
func (ix *Index) randomLevel(ml float64) int {
	ix.mu.Lock()
	r := ix.rng.Float64()
	ix.mu.Unlock()
	level := int(-math.Log(r) * ml)
	if level > maxLevel {
		level = maxLevel
	}
	return level
}
