// Package kbucket implements the XOR-metric routing table: k-buckets
// covering contiguous ranges of the 160-bit ID space, with splitting,
// least-recently-seen eviction, and a replacement cache, grounded on the
// teacher's dht.KBucket/RoutingTable (github.com/opd-ai/toxcore/dht) and
// generalized to support bucket splitting, which the teacher's fixed
// 256-bucket array never needs because Tox IDs never split buckets.
package kbucket

import (
	"sync"
	"time"

	"github.com/brackenfield/kadnet/id"
)

// DefaultK is the default live-list capacity and result width (spec.md §1/§4).
const DefaultK = 20

// DefaultReplacementFactor is the multiplier R on k for replacement capacity.
const DefaultReplacementFactor = 5

// orderedSet is the least-recently-seen -> most-recently-seen list shared by
// a bucket's live and replacement lists: a slice-ordered index plus a map for
// O(1) lookup by NodeID. This is hand-rolled rather than built on
// store's simplelru, because simplelru's contract is a fixed-capacity
// cache that evicts its LRU entry automatically on every Add once full -
// exactly the opposite of a Kademlia bucket, which must never evict on
// touch and only ever drops its LRU entry after that entry fails a direct
// liveness ping (see RoutingTable.RemoveContact). A full bucket instead
// rejects the new contact and queues it in the replacement list, so the
// eviction decision has to stay in caller control, which simplelru does
// not expose.
type orderedSet struct {
	order []id.NodeID
	byID  map[id.NodeID]id.Contact
	cap   int
}

func newOrderedSet(capacity int) *orderedSet {
	return &orderedSet{byID: make(map[id.NodeID]id.Contact), cap: capacity}
}

func (s *orderedSet) len() int { return len(s.order) }

func (s *orderedSet) contains(n id.NodeID) bool {
	_, ok := s.byID[n]
	return ok
}

func (s *orderedSet) get(n id.NodeID) (id.Contact, bool) {
	c, ok := s.byID[n]
	return c, ok
}

// touch moves an existing entry to the MRU (back) position.
func (s *orderedSet) touch(c id.Contact) {
	s.removeID(c.ID)
	s.order = append(s.order, c.ID)
	s.byID[c.ID] = c
}

// pushBack appends a brand-new entry at the MRU end. Returns false if full.
func (s *orderedSet) pushBack(c id.Contact) bool {
	if len(s.order) >= s.cap {
		return false
	}
	s.order = append(s.order, c.ID)
	s.byID[c.ID] = c
	return true
}

// pushBackEvictingOldest appends at the MRU end, evicting the LRU entry if full.
func (s *orderedSet) pushBackEvictingOldest(c id.Contact) {
	if len(s.order) >= s.cap && len(s.order) > 0 {
		s.removeID(s.order[0])
	}
	s.order = append(s.order, c.ID)
	s.byID[c.ID] = c
}

func (s *orderedSet) removeID(n id.NodeID) {
	if _, ok := s.byID[n]; !ok {
		return
	}
	delete(s.byID, n)
	for i, o := range s.order {
		if o == n {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// front returns the LRU (least-recently-seen) entry.
func (s *orderedSet) front() (id.Contact, bool) {
	if len(s.order) == 0 {
		return id.Contact{}, false
	}
	return s.byID[s.order[0]], true
}

// newest returns the MRU entry, i.e. the most recently queued replacement.
func (s *orderedSet) newest() (id.Contact, bool) {
	if len(s.order) == 0 {
		return id.Contact{}, false
	}
	return s.byID[s.order[len(s.order)-1]], true
}

func (s *orderedSet) all() []id.Contact {
	out := make([]id.Contact, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.byID[n])
	}
	return out
}

// KBucket is a half-open ID range [lo, hi) holding up to k live contacts,
// ordered least-recently-seen to most-recently-seen, plus a replacement
// cache of candidates queued while the bucket is full.
type KBucket struct {
	mu sync.RWMutex

	lo, hi      id.NodeID
	live        *orderedSet
	replacement *orderedSet
	lastUpdated time.Time

	k     int
	depth int // shared-prefix length at which this bucket was created
}

// NewKBucket creates a k-bucket covering [lo, hi) with capacity k and
// replacement capacity k*DefaultReplacementFactor.
func NewKBucket(lo, hi id.NodeID, k int) *KBucket {
	return newKBucketAtDepth(lo, hi, k, 0)
}

func newKBucketAtDepth(lo, hi id.NodeID, k, depth int) *KBucket {
	if k <= 0 {
		k = DefaultK
	}
	return &KBucket{
		lo:          lo,
		hi:          hi,
		live:        newOrderedSet(k),
		replacement: newOrderedSet(k * DefaultReplacementFactor),
		lastUpdated: time.Now(),
		k:           k,
		depth:       depth,
	}
}

// Range returns the bucket's half-open [lo, hi) ID range.
func (b *KBucket) Range() (lo, hi id.NodeID) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lo, b.hi
}

// Covers reports whether n falls inside [lo, hi). The outermost bucket's hi
// is the all-ones ID, which is itself a valid NodeID, so Covers treats that
// specific hi value as inclusive.
func (b *KBucket) Covers(n id.NodeID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.hi == allOnes() {
		return !less(n, b.lo)
	}
	return !less(n, b.lo) && less(n, b.hi)
}

func allOnes() id.NodeID {
	var n id.NodeID
	for i := range n {
		n[i] = 0xff
	}
	return n
}

// LastUpdated returns the monotonic timestamp of the bucket's last activity.
func (b *KBucket) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdated
}

func (b *KBucket) touchActivity(now time.Time) {
	b.lastUpdated = now
}

// Live returns a snapshot of the bucket's live contacts, LRU first.
func (b *KBucket) Live() []id.Contact {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live.all()
}

// LiveLen reports the number of live contacts.
func (b *KBucket) LiveLen() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live.len()
}

// IsFull reports whether the live list is at capacity.
func (b *KBucket) IsFull() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live.len() >= b.k
}

// Has reports whether n is currently in the live list.
func (b *KBucket) Has(n id.NodeID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live.contains(n)
}

// LRU returns the stale candidate: the least-recently-seen live contact.
func (b *KBucket) LRU() (id.Contact, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live.front()
}

// less compares two NodeIDs as unsigned big-endian integers.
func less(a, b id.NodeID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
