package vector

import (
	"bytes"
	"container/heap"

	"github.com/helixkernel/kernel/pkg/ids"
)

// distItem is one (id, distance) pair flowing through the search-layer
// routine's heaps.
type distItem struct {
	id   ids.ID
	dist float32
}

// distHeap orders distItems by distance, tie-broken by ID bytes so search
// output is deterministic. isMax flips the ordering for the result heap.
type distHeap struct {
	items []distItem
	isMax bool
}

func newDistHeap(isMax bool) *distHeap {
	h := &distHeap{isMax: isMax}
	heap.Init(h)
	return h
}

func (h *distHeap) Len() int { return len(h.items) }

func (h *distHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.dist != b.dist {
		if h.isMax {
			return a.dist > b.dist
		}
		return a.dist < b.dist
	}
	cmp := bytes.Compare(a.id[:], b.id[:])
	if h.isMax {
		return cmp > 0
	}
	return cmp < 0
}

func (h *distHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *distHeap) Push(x any) { h.items = append(h.items, x.(distItem)) }

func (h *distHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// push adds an item.
func (h *distHeap) push(it distItem) { heap.Push(h, it) }

// pop removes the root. ok is false on an empty heap; the search-layer
// routine must tolerate empty heaps at any step rather than assume a value.
func (h *distHeap) pop() (distItem, bool) {
	if len(h.items) == 0 {
		return distItem{}, false
	}
	return heap.Pop(h).(distItem), true
}

// peek returns the root without removing it.
func (h *distHeap) peek() (distItem, bool) {
	if len(h.items) == 0 {
		return distItem{}, false
	}
	return h.items[0], true
}
