package traversal

import (
	"bytes"
	"container/heap"
	"strings"

	"github.com/helixkernel/kernel/pkg/graph"
	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/value"
)

// Shortest paths. Both variants walk the out_adj index, enforce the engine's
// depth cap, and keep a visited set so cyclic graphs terminate. A path is
// yielded as a Map value:
//
//	nodes  - Array of node id strings, source first
//	edges  - Array of edge id strings
//	hops   - Int64 edge count
//	weight - Float64 cumulative weight (Dijkstra only)

// ShortestPathBFS computes the hop-minimal path from each input node to the
// target over edges of the given label. Inputs with no path to target fail
// with NotFound.
func (t *Traversal) ShortestPathBFS(edgeLabel string, target ids.ID) *Traversal {
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
			return TraversalValue{}, false, kerr.New(kerr.TypeMismatch, "shortest path requires node input")
		}
		path, err := t.bfs(tv.Node.ID, target, edgeLabel)
		if err != nil {
			return TraversalValue{}, false, err
		}
		return path, true, nil
	}))
}

// ShortestPathDijkstras computes the weight-minimal path, with edge weights
// read from the named edge property. The weight expression must be a single
// property access; anything else fails with InvalidWeight, as does a
// non-numeric or negative weight.
func (t *Traversal) ShortestPathDijkstras(edgeLabel, weightProp string, target ids.ID) *Traversal {
	if t.err != nil {
		return t
	}
	if err := validateWeightExpr(weightProp); err != nil {
		return t.fail(err)
	}
	upstream := t.src
	return t.derive(sourceFunc(func() (TraversalValue, bool, error) {
		tv, ok, err := upstream.Next()
		if err != nil || !ok {
			return TraversalValue{}, false, err
		}
		if tv.Kind != KindNode {
			return TraversalValue{}, false, kerr.New(kerr.TypeMismatch, "shortest path requires node input")
		}
		path, err := t.dijkstra(tv.Node.ID, target, edgeLabel, weightProp)
		if err != nil {
			return TraversalValue{}, false, err
		}
		return path, true, nil
	}))
}

// validateWeightExpr defends against expressions the analyzer layer should
// have rejected: only a bare property name is a legal weight.
func validateWeightExpr(expr string) error {
	if expr == "" || strings.ContainsAny(expr, ".()[] \t\n") {
		return kerr.New(kerr.InvalidWeight, "weight must be a single edge property name")
	}
	return nil
}

// parentLink records how a node was reached during search.
type parentLink struct {
	node ids.ID
	edge ids.ID
}

func (t *Traversal) bfs(from, to ids.ID, edgeLabel string) (TraversalValue, error) {
	if from == to {
		return pathValue([]ids.ID{from}, nil, 0, false), nil
	}
	limit := t.eng.maxDepth()

	visited := map[ids.ID]bool{from: true}
	parents := map[ids.ID]parentLink{}
	queue := []ids.ID{from}
	depth := 0

	for len(queue) > 0 {
		if depth++; depth > limit {
			return TraversalValue{}, kerr.New(kerr.MaxDepthExceeded, "bfs exceeded depth cap")
		}
		var next []ids.ID
		for _, cur := range queue {
			adjs, err := t.neighbours(cur, edgeLabel)
			if err != nil {
				return TraversalValue{}, err
			}
			for _, adj := range adjs {
				if visited[adj.Neighbour] {
					continue
				}
				visited[adj.Neighbour] = true
				parents[adj.Neighbour] = parentLink{node: cur, edge: adj.EdgeID}
				if adj.Neighbour == to {
					nodes, edges := reconstruct(from, to, parents)
					return pathValue(nodes, edges, 0, false), nil
				}
				next = append(next, adj.Neighbour)
			}
		}
		queue = next
	}
	return TraversalValue{}, kerr.New(kerr.NotFound, "no path to target")
}

// pqItem is one frontier entry in Dijkstra's min-heap.
type pqItem struct {
	node   ids.ID
	weight float64
}

type pathPQ []pqItem

func (pq pathPQ) Len() int { return len(pq) }
func (pq pathPQ) Less(i, j int) bool {
	if pq[i].weight != pq[j].weight {
		return pq[i].weight < pq[j].weight
	}
	return bytes.Compare(pq[i].node[:], pq[j].node[:]) < 0
}
func (pq pathPQ) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *pathPQ) Push(x any)   { *pq = append(*pq, x.(pqItem)) }
func (pq *pathPQ) Pop() any {
	old := *pq
	n := len(old)
	x := old[n-1]
	*pq = old[:n-1]
	return x
}

func (t *Traversal) dijkstra(from, to ids.ID, edgeLabel, weightProp string) (TraversalValue, error) {
	if from == to {
		return pathValue([]ids.ID{from}, nil, 0, true), nil
	}
	limit := t.eng.maxDepth()

	dist := map[ids.ID]float64{from: 0}
	parents := map[ids.ID]parentLink{}
	settled := map[ids.ID]bool{}
	pq := &pathPQ{{node: from, weight: 0}}
	heap.Init(pq)
	expansions := 0

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if settled[cur.node] {
			continue
		}
		settled[cur.node] = true
		if cur.node == to {
			nodes, edges := reconstruct(from, to, parents)
			return pathValue(nodes, edges, cur.weight, true), nil
		}
		if expansions++; expansions > limit {
			return TraversalValue{}, kerr.New(kerr.MaxDepthExceeded, "dijkstra exceeded depth cap")
		}

		adjs, err := t.neighbours(cur.node, edgeLabel)
		if err != nil {
			return TraversalValue{}, err
		}
		for _, adj := range adjs {
			if settled[adj.Neighbour] {
				continue
			}
			edge, err := t.eng.Graph.GetEdge(t.tx, adj.EdgeID)
			if err != nil {
				return TraversalValue{}, err
			}
			w, ok := edge.Properties[weightProp].AsFloat64()
			if !ok || w < 0 {
				return TraversalValue{}, kerr.New(kerr.InvalidWeight,
					"edge weight "+weightProp+" must be a non-negative number")
			}
			candidate := cur.weight + w
			if best, seen := dist[adj.Neighbour]; !seen || candidate < best {
				dist[adj.Neighbour] = candidate
				parents[adj.Neighbour] = parentLink{node: cur.node, edge: adj.EdgeID}
				heap.Push(pq, pqItem{node: adj.Neighbour, weight: candidate})
			}
		}
	}
	return TraversalValue{}, kerr.New(kerr.NotFound, "no path to target")
}

// neighbours materializes one node's outgoing adjacency over edgeLabel.
func (t *Traversal) neighbours(id ids.ID, edgeLabel string) ([]graph.Adjacency, error) {
	iter := t.eng.Graph.Neighbours(t.tx, id, graph.Outgoing, edgeLabel)
	defer iter.Close()

	var out []graph.Adjacency
	for {
		adj, ok, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, adj)
	}
}

// reconstruct walks the parent links back from to and reverses into
// source-first order.
func reconstruct(from, to ids.ID, parents map[ids.ID]parentLink) ([]ids.ID, []ids.ID) {
	var nodes, edges []ids.ID
	cur := to
	for cur != from {
		link := parents[cur]
		nodes = append(nodes, cur)
		edges = append(edges, link.edge)
		cur = link.node
	}
	nodes = append(nodes, from)
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return nodes, edges
}

// pathValue renders a path as the Map form documented above.
func pathValue(nodes, edges []ids.ID, weight float64, weighted bool) TraversalValue {
	nodeVals := make([]value.Value, len(nodes))
	for i, id := range nodes {
		nodeVals[i] = value.String(id.String())
	}
	edgeVals := make([]value.Value, len(edges))
	for i, id := range edges {
		edgeVals[i] = value.String(id.String())
	}
	m := map[string]value.Value{
		"nodes": value.Array(nodeVals),
		"edges": value.Array(edgeVals),
		"hops":  value.Int64(int64(len(edges))),
	}
	if weighted {
		m["weight"] = value.Float64(weight)
	}
	return MapValue(m)
}
