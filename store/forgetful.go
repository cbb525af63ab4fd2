package store

import (
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/brackenfield/kadnet/id"
)

// DefaultTTL is the lifetime of an entry before it is culled, per spec.md §3.
const DefaultTTL = 7 * 24 * time.Hour

// ForgetfulStorage is an insertion-ordered map with a time-to-live. It is
// built on hashicorp/golang-lru's simplelru.LRU purely for its
// doubly-linked-list ordering (move-to-MRU on Remove-then-Add, GetOldest
// and Remove for oldest-first eviction) — capacity is effectively unbounded here because
// eviction is TTL-driven, not size-driven, so the wrapped LRU is sized to
// math.MaxInt32 and never evicts on its own.
type ForgetfulStorage struct {
	mu  sync.Mutex
	lru *lru.LRU[id.NodeID, Entry]
	ttl time.Duration
	now func() time.Time
}

// NewForgetfulStorage creates a ForgetfulStorage with the given TTL. A zero
// ttl defaults to DefaultTTL.
func NewForgetfulStorage(ttl time.Duration) *ForgetfulStorage {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l, err := lru.NewLRU[id.NodeID, Entry](math.MaxInt32, nil)
	if err != nil {
		// math.MaxInt32 is always a valid positive size; this cannot happen.
		panic(err)
	}
	return &ForgetfulStorage{lru: l, ttl: ttl, now: time.Now}
}

// Set overwrites birthday and value for key, last-writer-wins. Re-inserting
// an existing key moves it to the MRU end, per spec.md §4.2.
func (s *ForgetfulStorage) Set(key id.NodeID, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(key)
	s.lru.Add(key, Entry{Birthday: s.now(), Value: v})
}

// Get returns the stored value or def if key is absent or expired.
func (s *ForgetfulStorage) Get(key id.NodeID, def Value) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lru.Peek(key) // Peek, not Get: a read must not reorder entries
	if !ok {
		return def, false
	}
	if s.expired(e) {
		s.lru.Remove(key)
		return def, false
	}
	return e.Value, true
}

// Iterate culls expired entries oldest-first, then yields the survivors in
// insertion order.
func (s *ForgetfulStorage) Iterate(fn func(id.NodeID, Value) bool) {
	s.mu.Lock()
	s.cullLocked()
	keys := s.lru.Keys()
	entries := make([]Entry, len(keys))
	for i, k := range keys {
		e, _ := s.lru.Peek(k)
		entries[i] = e
	}
	s.mu.Unlock()

	for i, k := range keys {
		if !fn(k, entries[i].Value) {
			return
		}
	}
}

// IterateOlderThan yields entries whose birthday is at or before now-delta.
func (s *ForgetfulStorage) IterateOlderThan(delta time.Duration, now time.Time, fn func(id.NodeID, Value) bool) {
	cutoff := now.Add(-delta)
	s.mu.Lock()
	keys := s.lru.Keys()
	type kv struct {
		k id.NodeID
		e Entry
	}
	var stale []kv
	for _, k := range keys {
		e, ok := s.lru.Peek(k)
		if ok && !e.Birthday.After(cutoff) {
			stale = append(stale, kv{k, e})
		}
	}
	s.mu.Unlock()

	for _, item := range stale {
		if !fn(item.k, item.e.Value) {
			return
		}
	}
}

// SetClock overrides the time source, for deterministic TTL tests.
func (s *ForgetfulStorage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Len reports the number of entries, after culling expired ones.
func (s *ForgetfulStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cullLocked()
	return s.lru.Len()
}

func (s *ForgetfulStorage) expired(e Entry) bool {
	return s.now().Sub(e.Birthday) >= s.ttl
}

// cullLocked removes oldest-first entries whose birthday <= now-ttl. Must be
// called with s.mu held.
func (s *ForgetfulStorage) cullLocked() {
	for {
		k, e, ok := s.lru.GetOldest()
		if !ok || !s.expired(e) {
			return
		}
		s.lru.Remove(k)
	}
}
