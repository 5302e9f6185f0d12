package traversal

import (
	"math"

	vmath "github.com/helixkernel/kernel/pkg/math/vector"
	"github.com/helixkernel/kernel/pkg/vector"
)

// SearchV probes the HNSW index and yields the k nearest live vectors in
// ascending distance order. ef overrides the label's default search width
// when positive.
func (t *Traversal) SearchV(label string, query []float32, k, ef int) *Traversal {
	if t.err != nil {
		return t
	}
	entries, err := t.eng.Vectors.Search(t.tx, label, query, k, ef)
	if err != nil {
		return t.fail(err)
	}
	items := make([]TraversalValue, 0, len(entries))
	for _, e := range entries {
		items = append(items, VectorValue(e))
	}
	return t.derive(sliceSource(items))
}

// SearchBM25 scores the corpus against the query text and yields the top k
// matching nodes in descending score order.
func (t *Traversal) SearchBM25(query string, k int) *Traversal {
	if t.err != nil {
		return t
	}
	scored, err := t.eng.Text.Search(t.tx, query, k)
	if err != nil {
		return t.fail(err)
	}
	items := make([]TraversalValue, 0, len(scored))
	for _, s := range scored {
		node, err := t.eng.Graph.GetNode(t.tx, s.ID)
		if err != nil {
			return t.fail(err)
		}
		items = append(items, NodeValue(node))
	}
	return t.derive(sliceSource(items))
}

// RerankMMR re-orders a scored vector stream by maximal marginal relevance:
// each position picks the candidate maximizing
//
//	lambda * relevance - (1 - lambda) * max similarity to already selected
//
// where relevance is derived from the search distance and similarity is
// cosine between candidate vectors. lambda = 1 keeps the original relevance
// order; lambda = 0 maximizes diversity.
func (t *Traversal) RerankMMR(lambda float64) *Traversal {
	if t.err != nil {
		return t
	}
	elems, err := t.Collect()
	if err != nil {
		return t.fail(err)
	}
	if len(elems) <= 1 || lambda >= 1.0 {
		return t.derive(sliceSource(elems))
	}

	type candidate struct {
		tv        TraversalValue
		entry     *vector.Entry
		relevance float64
	}
	candidates := make([]candidate, 0, len(elems))
	for _, tv := range elems {
		if tv.Kind != KindVector {
			// Non-vector elements keep their position by treating them as
			// zero-relevance, zero-similarity candidates.
			candidates = append(candidates, candidate{tv: tv})
			continue
		}
		candidates = append(candidates, candidate{
			tv:        tv,
			entry:     tv.Vector,
			relevance: 1.0 / (1.0 + float64(tv.Vector.Distance)),
		})
	}

	selected := make([]TraversalValue, 0, len(candidates))
	var chosen []*vector.Entry
	for len(candidates) > 0 {
		bestIdx, bestScore := -1, math.Inf(-1)
		for i, c := range candidates {
			maxSim := 0.0
			if c.entry != nil {
				for _, s := range chosen {
					if sim := vmath.CosineSimilarity(c.entry.Data, s.Data); sim > maxSim {
						maxSim = sim
					}
				}
			}
			score := lambda*c.relevance - (1-lambda)*maxSim
			if score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		picked := candidates[bestIdx]
		selected = append(selected, picked.tv)
		if picked.entry != nil {
			chosen = append(chosen, picked.entry)
		}
		candidates = append(candidates[:bestIdx], candidates[bestIdx+1:]...)
	}
	return t.derive(sliceSource(selected))
}
