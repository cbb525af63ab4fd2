// Package lookup implements the iterative lookup ("spider"): a node-heap
// frontier of candidates ordered by XOR distance, and the α-parallel round
// loop that drives FIND_NODE/FIND_VALUE RPCs to convergence, grounded on the
// α-parallel goroutine-and-channel collection loop in the teacher's
// dht.BootstrapManager.Bootstrap (github.com/opd-ai/toxcore/dht/bootstrap.go).
package lookup

import (
	"container/heap"

	"github.com/brackenfield/kadnet/id"
)

// NodeHeap is a min-heap of (distance-to-target, Contact) pairs whose TopK
// yields only the first maxSize entries by distance (the heap itself keeps
// every candidate pushed), with a contacted set tracking which candidates a
// spider round has already probed.
type NodeHeap struct {
	target    id.NodeID
	maxSize   int
	items     nodeHeapItems
	contacted map[id.NodeID]bool
	present   map[id.NodeID]bool
}

type heapEntry struct {
	dist id.Distance
	c    id.Contact
}

type nodeHeapItems []heapEntry

func (h nodeHeapItems) Len() int            { return len(h) }
func (h nodeHeapItems) Less(i, j int) bool  { return h[i].dist.Less(h[j].dist) }
func (h nodeHeapItems) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeapItems) Push(x interface{}) { *h = append(*h, x.(heapEntry)) }
func (h *nodeHeapItems) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NewNodeHeap creates a lookup frontier toward target, bounded to maxSize
// results, seeded with the given initial contacts.
func NewNodeHeap(target id.NodeID, maxSize int, seed []id.Contact) *NodeHeap {
	h := &NodeHeap{
		target:    target,
		maxSize:   maxSize,
		contacted: make(map[id.NodeID]bool),
		present:   make(map[id.NodeID]bool),
	}
	heap.Init(&h.items)
	for _, c := range seed {
		h.Push(c)
	}
	return h
}

// Push adds a contact to the frontier if it is not already present.
func (h *NodeHeap) Push(c id.Contact) {
	if h.present[c.ID] {
		return
	}
	h.present[c.ID] = true
	heap.Push(&h.items, heapEntry{dist: id.Xor(h.target, c.ID), c: c})
}

// Remove drops a contact from the frontier entirely (used when an RPC to it fails).
func (h *NodeHeap) Remove(n id.NodeID) {
	if !h.present[n] {
		return
	}
	delete(h.present, n)
	for i, e := range h.items {
		if e.c.ID == n {
			heap.Remove(&h.items, i)
			break
		}
	}
}

// MarkContacted records that a round has already probed n.
func (h *NodeHeap) MarkContacted(n id.NodeID) {
	h.contacted[n] = true
}

// Contacted reports whether n has already been probed.
func (h *NodeHeap) Contacted(n id.NodeID) bool {
	return h.contacted[n]
}

// TopK returns the first maxSize contacts by ascending distance.
func (h *NodeHeap) TopK() []id.Contact {
	sorted := make(nodeHeapItems, len(h.items))
	copy(sorted, h.items)
	// items is already a valid heap, but not necessarily fully sorted;
	// repeated Pop on a copy yields ascending order without disturbing h.
	cp := &nodeHeapItems{}
	*cp = append(*cp, sorted...)
	heap.Init(cp)

	n := h.maxSize
	if n <= 0 || n > cp.Len() {
		n = cp.Len()
	}
	out := make([]id.Contact, 0, n)
	for i := 0; i < n; i++ {
		e := heap.Pop(cp).(heapEntry)
		out = append(out, e.c)
	}
	return out
}

// Uncontacted returns up to n contacts from TopK that have not yet been
// contacted, nearest first.
func (h *NodeHeap) Uncontacted(n int) []id.Contact {
	var out []id.Contact
	for _, c := range h.TopK() {
		if len(out) >= n {
			break
		}
		if !h.Contacted(c.ID) {
			out = append(out, c)
		}
	}
	return out
}

// AllTopKContacted reports whether every member of the current top-k has
// already been contacted: the spider's termination condition.
func (h *NodeHeap) AllTopKContacted() bool {
	for _, c := range h.TopK() {
		if !h.Contacted(c.ID) {
			return false
		}
	}
	return true
}

// Len reports the number of candidates currently tracked (not bounded to maxSize).
func (h *NodeHeap) Len() int {
	return len(h.items)
}
