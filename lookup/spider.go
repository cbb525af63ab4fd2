package lookup

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/store"
)

// Alpha is the default lookup concurrency factor (spec.md §4.4).
const Alpha = 3

// Finder is the subset of RPC behavior a Spider needs to drive a lookup:
// ask a single remote contact for its k closest neighbors to target, or (for
// a value lookup) the value itself if that peer happens to store it.
// Implemented by the server package's transportFinder over an
// rpc.Transport; kept as an interface here so
// lookup has no dependency on the wire format, grounded on the teacher's
// dht.BootstrapManager accepting a narrow send-and-collect callback rather
// than a concrete transport.
type Finder interface {
	FindNode(ctx context.Context, peer id.Contact, target id.NodeID) ([]id.Contact, error)
	FindValue(ctx context.Context, peer id.Contact, target id.NodeID) ([]id.Contact, store.Value, bool, error)
}

// Spider drives the iterative lookup ("spider") described in spec.md §4.4:
// repeated rounds of up to Alpha parallel RPCs to the closest uncontacted
// candidates, folding newly discovered contacts into the frontier, until the
// current top-k are all contacted.
type Spider struct {
	finder Finder
	k      int
	alpha  int
	log    *logrus.Entry
}

// NewSpider creates a Spider bound to the given Finder and lookup width k.
func NewSpider(finder Finder, k int, log *logrus.Entry) *Spider {
	if k <= 0 {
		k = 20
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Spider{finder: finder, k: k, alpha: Alpha, log: log}
}

// FindNode runs an iterative FIND_NODE lookup toward target, seeded with
// initial candidates (typically the caller's own routing-table neighbors),
// and returns up to k contacts closest to target that were found.
func (s *Spider) FindNode(ctx context.Context, target id.NodeID, seed []id.Contact) []id.Contact {
	frontier := NewNodeHeap(target, s.k, seed)
	s.runRounds(ctx, target, frontier, nil)
	return frontier.TopK()
}

// FindValue runs an iterative FIND_VALUE lookup toward key. If any queried
// peer returns the value, the lookup stops early, returns it, and (per
// spec.md §4.4's caching-store side effect) stores a copy on the single
// closest contact that did NOT have it, via the given cacher callback.
func (s *Spider) FindValue(ctx context.Context, key id.NodeID, seed []id.Contact, cacher func(peer id.Contact, v store.Value)) (store.Value, bool) {
	frontier := NewNodeHeap(key, s.k, seed)

	var found store.Value
	var foundOK bool
	var closestWithoutValue id.Contact
	var haveClosestWithoutValue bool

	onMiss := func(peer id.Contact) {
		if !haveClosestWithoutValue || id.Xor(peer.ID, key).Less(id.Xor(closestWithoutValue.ID, key)) {
			closestWithoutValue = peer
			haveClosestWithoutValue = true
		}
	}

	s.runValueRounds(ctx, key, frontier, onMiss, &found, &foundOK)

	if foundOK && haveClosestWithoutValue && cacher != nil {
		cacher(closestWithoutValue, found)
	}
	return found, foundOK
}

// runRounds executes FIND_NODE rounds until the frontier's top-k are all
// contacted or the context is cancelled. onValue, if non-nil, is unused here
// (kept symmetrical with runValueRounds' signature for readability).
func (s *Spider) runRounds(ctx context.Context, target id.NodeID, frontier *NodeHeap, onValue func(id.Contact)) {
	for {
		if ctx.Err() != nil {
			return
		}
		batch := frontier.Uncontacted(s.alpha)
		if len(batch) == 0 {
			return
		}

		type result struct {
			peer id.Contact
			next []id.Contact
			err  error
		}
		results := make(chan result, len(batch))
		var wg sync.WaitGroup
		for _, peer := range batch {
			wg.Add(1)
			go func(peer id.Contact) {
				defer wg.Done()
				next, err := s.finder.FindNode(ctx, peer, target)
				results <- result{peer: peer, next: next, err: err}
			}(peer)
		}
		wg.Wait()
		close(results)

		for r := range results {
			frontier.MarkContacted(r.peer.ID)
			if r.err != nil {
				s.log.WithError(r.err).WithField("peer", r.peer.ID.String()).Debug("find_node round failed")
				frontier.Remove(r.peer.ID)
				continue
			}
			for _, c := range r.next {
				frontier.Push(c)
			}
		}

		if frontier.AllTopKContacted() {
			return
		}
	}
}

// runValueRounds mirrors runRounds but stops as soon as any peer returns the
// value, and invokes onMiss for every peer queried that did not have it.
func (s *Spider) runValueRounds(ctx context.Context, target id.NodeID, frontier *NodeHeap, onMiss func(id.Contact), found *store.Value, foundOK *bool) {
	for {
		if ctx.Err() != nil {
			return
		}
		batch := frontier.Uncontacted(s.alpha)
		if len(batch) == 0 {
			return
		}

		type result struct {
			peer  id.Contact
			next  []id.Contact
			value store.Value
			has   bool
			err   error
		}
		results := make(chan result, len(batch))
		var wg sync.WaitGroup
		for _, peer := range batch {
			wg.Add(1)
			go func(peer id.Contact) {
				defer wg.Done()
				next, v, has, err := s.finder.FindValue(ctx, peer, target)
				results <- result{peer: peer, next: next, value: v, has: has, err: err}
			}(peer)
		}
		wg.Wait()
		close(results)

		for r := range results {
			frontier.MarkContacted(r.peer.ID)
			if r.err != nil {
				s.log.WithError(r.err).WithField("peer", r.peer.ID.String()).Debug("find_value round failed")
				frontier.Remove(r.peer.ID)
				continue
			}
			if r.has {
				*found = r.value
				*foundOK = true
				continue
			}
			onMiss(r.peer)
			for _, c := range r.next {
				frontier.Push(c)
			}
		}

		if *foundOK {
			return
		}
		if frontier.AllTopKContacted() {
			return
		}
	}
}
