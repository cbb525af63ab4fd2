package lookup

import (
	"context"
	"sync"
	"testing"

	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/store"
)

// fakeFinder simulates a tiny network: each node knows a fixed neighbor list,
// and exactly one node holds the value under test.
type fakeFinder struct {
	mu         sync.Mutex
	neighbors  map[id.NodeID][]id.Contact
	holder     id.NodeID
	value      store.Value
	hasValue   bool
	cachedOn   map[id.NodeID]bool
	queryCount int
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{neighbors: make(map[id.NodeID][]id.Contact), cachedOn: make(map[id.NodeID]bool)}
}

func (f *fakeFinder) FindNode(_ context.Context, peer id.Contact, _ id.NodeID) ([]id.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCount++
	return f.neighbors[peer.ID], nil
}

func (f *fakeFinder) FindValue(_ context.Context, peer id.Contact, target id.NodeID) ([]id.Contact, store.Value, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCount++
	if f.hasValue && peer.ID == f.holder {
		return nil, f.value, true, nil
	}
	return f.neighbors[peer.ID], store.Value{}, false, nil
}

func TestSpiderFindNodeConverges(t *testing.T) {
	finder := newFakeFinder()
	a, b, c := contact("a", 1), contact("b", 2), contact("c", 3)
	finder.neighbors[a.ID] = []id.Contact{b}
	finder.neighbors[b.ID] = []id.Contact{c}
	finder.neighbors[c.ID] = nil

	sp := NewSpider(finder, 20, nil)
	target := id.Digest([]byte("target"))
	got := sp.FindNode(context.Background(), target, []id.Contact{a})

	seen := map[id.NodeID]bool{}
	for _, g := range got {
		seen[g.ID] = true
	}
	if !seen[a.ID] || !seen[b.ID] || !seen[c.ID] {
		t.Fatalf("expected lookup to discover a, b, and c transitively; got %v", got)
	}
}

func TestSpiderFindValueStopsEarlyAndCaches(t *testing.T) {
	finder := newFakeFinder()
	a, b := contact("a", 1), contact("b", 2)
	finder.neighbors[a.ID] = []id.Contact{b}
	finder.holder = b.ID
	finder.value = store.String("hit")
	finder.hasValue = true

	sp := NewSpider(finder, 20, nil)
	target := id.Digest([]byte("key"))

	var cachedPeer id.Contact
	var cachedValue store.Value
	cacher := func(peer id.Contact, v store.Value) {
		cachedPeer = peer
		cachedValue = v
	}

	got, ok := sp.FindValue(context.Background(), target, []id.Contact{a}, cacher)
	if !ok || !got.Equal(store.String("hit")) {
		t.Fatalf("FindValue() = (%v, %v), want (hit, true)", got, ok)
	}
	if cachedPeer.ID != a.ID {
		t.Fatalf("expected cache side effect on closest contact without the value (a), got %v", cachedPeer)
	}
	if !cachedValue.Equal(store.String("hit")) {
		t.Fatalf("cached value = %v, want hit", cachedValue)
	}
}

func TestSpiderFindValueMissReturnsFalse(t *testing.T) {
	finder := newFakeFinder()
	a := contact("a", 1)
	finder.neighbors[a.ID] = nil

	sp := NewSpider(finder, 20, nil)
	target := id.Digest([]byte("key"))

	_, ok := sp.FindValue(context.Background(), target, []id.Contact{a}, nil)
	if ok {
		t.Fatalf("expected FindValue to report a miss")
	}
}
