package store

import (
	"container/list"
	"sync"
	"time"

	"github.com/brackenfield/kadnet/id"
)

// ARCStorage implements the adaptive replacement cache algorithm (Megiddo &
// Modha, "ARC: A Self-Tuning, Low Overhead Replacement Cache", FAST 2003),
// grounded structurally on the four-list design in
// newbthenewbd/btrfs-rec's lib/caching ARC implementation but simplified to
// spec.md's non-generic, non-pinning contract and the explicit zero-guard
// spec.md §9 requires (the source's unguarded |B2|/|B1| division is a known
// bug; this implementation always takes max(ratio, 1)).
//
// Invariants maintained at all times: |T1|+|T2| <= capacity,
// |T1|+|B1| <= capacity, |T1|+|T2|+|B1|+|B2| <= 2*capacity.
type ARCStorage struct {
	mu  sync.Mutex
	cap int
	p   int // adaptive target size of T1

	t1, t2, b1, b2 *list.List
	index          map[id.NodeID]*list.Element // element.Value is *arcItem

	now func() time.Time
}

type listTag uint8

const (
	tagT1 listTag = iota
	tagT2
	tagB1
	tagB2
)

type arcItem struct {
	key      id.NodeID
	entry    Entry // zero for ghost (B1/B2) entries
	tag      listTag
}

// NewARCStorage creates an ARCStorage with the given capacity (the bound on
// |T1|+|T2|, i.e. the number of live entries retained).
func NewARCStorage(capacity int) *ARCStorage {
	if capacity <= 0 {
		panic("store: ARCStorage capacity must be positive")
	}
	return &ARCStorage{
		cap:   capacity,
		t1:    list.New(),
		t2:    list.New(),
		b1:    list.New(),
		b2:    list.New(),
		index: make(map[id.NodeID]*list.Element),
		now:   time.Now,
	}
}

// SetClock overrides the time source, for deterministic tests.
func (a *ARCStorage) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// Set inserts or overwrites key, following the full ARC access/miss path.
func (a *ARCStorage) Set(key id.NodeID, v Value) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := Entry{Birthday: a.now(), Value: v}

	if el, ok := a.index[key]; ok {
		item := el.Value.(*arcItem)
		switch item.tag {
		case tagT1, tagT2:
			// Hit on a live entry: overwrite and promote to T2 MRU.
			item.entry = entry
			a.moveToMRU(el, a.t2, tagT2)
			return
		case tagB1:
			a.adaptLocked(a.b2.Len(), a.b1.Len(), +1)
			a.replaceLocked(key)
			a.b1.Remove(el)
			delete(a.index, key)
			item.entry = entry
			a.pushMRU(key, item, a.t2, tagT2)
			return
		case tagB2:
			a.adaptLocked(a.b1.Len(), a.b2.Len(), -1)
			a.replaceLocked(key)
			a.b2.Remove(el)
			delete(a.index, key)
			item.entry = entry
			a.pushMRU(key, item, a.t2, tagT2)
			return
		}
	}

	// Clean miss: make room, then insert fresh into T1.
	a.makeRoomForMissLocked()
	item := &arcItem{key: key, entry: entry, tag: tagT1}
	a.pushMRU(key, item, a.t1, tagT1)
}

// Get returns the stored value, promoting the entry on a T1/T2 hit exactly
// as Set's access path does, without changing p or touching the ghost lists
// (a pure read is not a miss).
func (a *ARCStorage) Get(key id.NodeID, def Value) (Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	el, ok := a.index[key]
	if !ok {
		return def, false
	}
	item := el.Value.(*arcItem)
	switch item.tag {
	case tagT1:
		a.moveToMRU(el, a.t2, tagT2)
		return item.entry.Value, true
	case tagT2:
		a.moveToMRU(el, a.t2, tagT2)
		return item.entry.Value, true
	default:
		// Ghost entry: not a value hit.
		return def, false
	}
}

// Iterate yields every live (T1 ∪ T2) entry, in insertion (LRU→MRU) order
// per list, T1 then T2.
func (a *ARCStorage) Iterate(fn func(id.NodeID, Value) bool) {
	a.mu.Lock()
	type kv struct {
		k id.NodeID
		v Value
	}
	var out []kv
	for e := a.t1.Front(); e != nil; e = e.Next() {
		it := e.Value.(*arcItem)
		out = append(out, kv{it.key, it.entry.Value})
	}
	for e := a.t2.Front(); e != nil; e = e.Next() {
		it := e.Value.(*arcItem)
		out = append(out, kv{it.key, it.entry.Value})
	}
	a.mu.Unlock()

	for _, item := range out {
		if !fn(item.k, item.v) {
			return
		}
	}
}

// IterateOlderThan yields live entries whose birthday is at or before now-delta.
func (a *ARCStorage) IterateOlderThan(delta time.Duration, now time.Time, fn func(id.NodeID, Value) bool) {
	cutoff := now.Add(-delta)
	type kv struct {
		k id.NodeID
		v Value
	}
	var out []kv

	a.mu.Lock()
	for _, l := range []*list.List{a.t1, a.t2} {
		for e := l.Front(); e != nil; e = e.Next() {
			it := e.Value.(*arcItem)
			if !it.entry.Birthday.After(cutoff) {
				out = append(out, kv{it.key, it.entry.Value})
			}
		}
	}
	a.mu.Unlock()

	for _, item := range out {
		if !fn(item.k, item.v) {
			return
		}
	}
}

// Len reports the number of live entries (|T1|+|T2|).
func (a *ARCStorage) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t1.Len() + a.t2.Len()
}

// Sizes exposes the four list lengths and the adaptive split point, for the
// invariant property tests in spec.md §8.
func (a *ARCStorage) Sizes() (t1, t2, b1, b2, p int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t1.Len(), a.t2.Len(), a.b1.Len(), a.b2.Len(), a.p
}

func (a *ARCStorage) listOf(tag listTag) *list.List {
	switch tag {
	case tagT1:
		return a.t1
	case tagT2:
		return a.t2
	case tagB1:
		return a.b1
	default:
		return a.b2
	}
}

// adaptLocked adjusts p on a ghost hit: numer/denom is |B2|/|B1| (B1 ghost
// hit, direction +1) or |B1|/|B2| (B2 ghost hit, direction -1). Both ratios
// are floored at 1 to guard the empty-ghost-list division spec.md §9 flags.
func (a *ARCStorage) adaptLocked(numer, denom int, direction int) {
	ratio := 1
	if denom > 0 && numer/denom > 1 {
		ratio = numer / denom
	}
	if direction > 0 {
		a.p += ratio
		if a.p > a.cap {
			a.p = a.cap
		}
	} else {
		a.p -= ratio
		if a.p < 0 {
			a.p = 0
		}
	}
}

// replaceLocked implements ARC's REPLACE(x): evict from T1 to B1 when
// |T1| exceeds p (or is nonempty and a B2 ghost hit with |T1|==p), else
// evict from T2 to B2.
func (a *ARCStorage) replaceLocked(missedKey id.NodeID) {
	inB2 := false
	if el, ok := a.index[missedKey]; ok {
		inB2 = el.Value.(*arcItem).tag == tagB2
	}

	t1Len, t2Len := a.t1.Len(), a.t2.Len()
	evictFromT1 := t1Len > 0 && (t1Len > a.p || (t1Len == a.p && inB2))

	if evictFromT1 {
		a.evictLRU(a.t1, a.b1, tagB1)
	} else if t2Len > 0 {
		a.evictLRU(a.t2, a.b2, tagB2)
	} else if t1Len > 0 {
		a.evictLRU(a.t1, a.b1, tagB1)
	}
}

// makeRoomForMissLocked implements ARC's case (IV): the missed key is in
// none of the four lists. When |T1|+|B1| has reached capacity, the oldest
// B1 ghost is dropped (or, if T1 alone fills the cache, T1's LRU entry is
// discarded outright); otherwise the oldest B2 ghost is dropped once the
// four lists together hold 2*capacity entries. Then, if the cache is full,
// one live entry is replaced.
func (a *ARCStorage) makeRoomForMissLocked() {
	t1, b1 := a.t1.Len(), a.b1.Len()
	if t1+b1 >= a.cap {
		if t1 >= a.cap {
			a.dropOldestGhost(a.t1)
			return
		}
		a.dropOldestGhost(a.b1)
	} else if t1+a.t2.Len()+b1+a.b2.Len() >= 2*a.cap {
		a.dropOldestGhost(a.b2)
	}
	if a.t1.Len()+a.t2.Len() >= a.cap {
		a.replaceLocked(id.NodeID{})
	}
}

func (a *ARCStorage) dropOldestGhost(l *list.List) {
	front := l.Front()
	if front == nil {
		return
	}
	it := front.Value.(*arcItem)
	l.Remove(front)
	delete(a.index, it.key)
}

func (a *ARCStorage) evictLRU(from, to *list.List, toTag listTag) {
	front := from.Front()
	if front == nil {
		return
	}
	it := front.Value.(*arcItem)
	from.Remove(front)
	it.entry = Entry{}
	it.tag = toTag
	el := to.PushBack(it)
	a.index[it.key] = el

	// Each ghost list is also held to at most capacity entries.
	if to.Len() > a.cap {
		a.dropOldestGhost(to)
	}
}

// moveToMRU relocates an element to the back (MRU end) of dst, retagging it.
func (a *ARCStorage) moveToMRU(el *list.Element, dst *list.List, tag listTag) {
	it := el.Value.(*arcItem)
	src := a.listOf(it.tag)
	src.Remove(el)
	it.tag = tag
	newEl := dst.PushBack(it)
	a.index[it.key] = newEl
}

// pushMRU inserts a brand-new item at the back (MRU end) of dst.
func (a *ARCStorage) pushMRU(key id.NodeID, item *arcItem, dst *list.List, tag listTag) {
	item.tag = tag
	el := dst.PushBack(item)
	a.index[key] = el
}
