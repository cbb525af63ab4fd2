package kbucket

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/brackenfield/kadnet/id"
)

// LonelyAge is how stale a bucket's last activity must be before it is
// considered "lonely" and due for a refresh lookup (spec.md §4.1).
const LonelyAge = time.Hour

// splitModulus bounds how deep buckets away from the home ID may split: a
// bucket may split if it contains the home ID, or if its depth is not a
// multiple of this value. This mirrors the standard Kademlia relaxation
// that lets the table grow beyond a single split per level far from home,
// while still bounding total bucket count, per spec.md §4.1.
const splitModulus = 5

// RoutingTable is an ordered sequence of KBuckets covering the ID space
// contiguously, grounded on the teacher's dht.RoutingTable generalized to
// split dynamically instead of pre-allocating a fixed 256-bucket array.
type RoutingTable struct {
	mu      sync.RWMutex
	home    id.NodeID
	k       int
	buckets []*KBucket // kept sorted by lo, contiguous, covering [0, 2^160)
}

// New creates a RoutingTable for the given home ID with a single bucket
// spanning the whole ID space.
func New(home id.NodeID, k int) *RoutingTable {
	if k <= 0 {
		k = DefaultK
	}
	// The root bucket's hi is a sentinel: [0, 2^160) has no representable
	// exclusive upper bound in a 20-byte array, so the last bucket in
	// t.buckets is always treated as covering up to and including the
	// all-ones ID (see findBucketLocked).
	var zero, sentinel id.NodeID
	for i := range sentinel {
		sentinel[i] = 0xff
	}
	root := newKBucketAtDepth(zero, sentinel, k, 0)
	return &RoutingTable{home: home, k: k, buckets: []*KBucket{root}}
}

// findBucketLocked returns the index of the bucket whose range contains n.
// Must be called with t.mu held.
func (t *RoutingTable) findBucketLocked(n id.NodeID) int {
	for i, b := range t.buckets {
		if i == len(t.buckets)-1 {
			return i // last bucket's hi is the sentinel max value, inclusive
		}
		if !less(n, b.lo) && less(n, b.hi) {
			return i
		}
	}
	return len(t.buckets) - 1
}

// AddContact implements spec.md §4.1's add_contact.
func (t *RoutingTable) AddContact(c id.Contact) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()

	for {
		idx := t.findBucketLocked(c.ID)
		b := t.buckets[idx]

		b.mu.Lock()
		if b.live.contains(c.ID) {
			b.live.touch(c)
			b.touchActivity(now)
			b.mu.Unlock()
			return
		}
		if b.live.len() < b.k {
			b.live.pushBack(c)
			b.touchActivity(now)
			b.mu.Unlock()
			return
		}

		homeInRange := !less(t.home, b.lo) && less(t.home, b.hi)
		canSplit := homeInRange || b.depth%splitModulus != 0
		if !canSplit {
			b.replacement.pushBackEvictingOldest(c)
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()

		t.splitLocked(idx)
		// retry against the (now two) narrower buckets
	}
}

// splitLocked splits the bucket at idx into two equal halves at its
// midpoint and redistributes its contents. Must be called with t.mu held.
func (t *RoutingTable) splitLocked(idx int) {
	b := t.buckets[idx]
	mid := midpoint(b.lo, b.hi)

	lower := newKBucketAtDepth(b.lo, mid, b.k, b.depth+1)
	upper := newKBucketAtDepth(mid, b.hi, b.k, b.depth+1)

	for _, c := range b.live.all() {
		if less(c.ID, mid) {
			lower.live.pushBackEvictingOldest(c)
		} else {
			upper.live.pushBackEvictingOldest(c)
		}
	}
	for _, c := range b.replacement.all() {
		if less(c.ID, mid) {
			lower.replacement.pushBackEvictingOldest(c)
		} else {
			upper.replacement.pushBackEvictingOldest(c)
		}
	}
	lower.lastUpdated, upper.lastUpdated = b.lastUpdated, b.lastUpdated

	t.buckets = append(t.buckets[:idx], append([]*KBucket{lower, upper}, t.buckets[idx+1:]...)...)
}

// midpoint computes the ID exactly halfway between lo (inclusive) and hi
// (exclusive), using big.Int since 160-bit arithmetic doesn't fit a machine word.
func midpoint(lo, hi id.NodeID) id.NodeID {
	loInt := new(big.Int).SetBytes(lo[:])
	hiInt := new(big.Int).SetBytes(hi[:])
	sum := new(big.Int).Add(loInt, hiInt)
	mid := sum.Rsh(sum, 1)

	var out id.NodeID
	b := mid.Bytes()
	copy(out[id.Size-len(b):], b)
	return out
}

// RemoveContact implements spec.md §4.1's remove_contact: drop c from its
// bucket's live list, promoting the newest replacement if one exists.
func (t *RoutingTable) RemoveContact(c id.Contact) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.findBucketLocked(c.ID)
	b := t.buckets[idx]

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.live.contains(c.ID) {
		return
	}
	b.live.removeID(c.ID)
	if repl, ok := b.replacement.newest(); ok {
		b.replacement.removeID(repl.ID)
		b.live.pushBack(repl)
	}
}

// IsNewNode reports whether c is not currently in any bucket's live list.
func (t *RoutingTable) IsNewNode(c id.Contact) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx := t.findBucketLocked(c.ID)
	return !t.buckets[idx].live.contains(c.ID)
}

// distanceEntry pairs a contact with its XOR distance to a lookup target,
// for sorting find-neighbors candidates.
type distanceEntry struct {
	dist id.Distance
	c    id.Contact
}

// FindNeighbors returns up to k contacts with the smallest XOR distance to
// target, nearest first. It collects the live contacts of every bucket and
// sorts them all by distance; buckets are not visited in distance order.
// exclude is a set of NodeIDs to omit from the result.
func (t *RoutingTable) FindNeighbors(target id.NodeID, k int, exclude map[id.NodeID]bool) []id.Contact {
	t.mu.RLock()
	buckets := make([]*KBucket, len(t.buckets))
	copy(buckets, t.buckets)
	t.mu.RUnlock()

	var candidates []distanceEntry
	for _, b := range buckets {
		for _, c := range b.Live() {
			if exclude != nil && exclude[c.ID] {
				continue
			}
			candidates = append(candidates, distanceEntry{dist: id.Xor(target, c.ID), c: c})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].dist.Less(candidates[j].dist)
	})

	if k <= 0 || k > len(candidates) {
		k = len(candidates)
	}
	out := make([]id.Contact, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].c
	}
	return out
}

// LonelyBuckets returns buckets whose last activity predates LonelyAge.
func (t *RoutingTable) LonelyBuckets() []*KBucket {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := time.Now()
	var out []*KBucket
	for _, b := range t.buckets {
		if now.Sub(b.LastUpdated()) > LonelyAge {
			out = append(out, b)
		}
	}
	return out
}

// Buckets returns a snapshot of the current bucket list, ordered by range.
func (t *RoutingTable) Buckets() []*KBucket {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*KBucket, len(t.buckets))
	copy(out, t.buckets)
	return out
}

// Len reports the total number of live contacts across all buckets.
func (t *RoutingTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, b := range t.buckets {
		total += b.LiveLen()
	}
	return total
}
