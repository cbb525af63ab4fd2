package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/kadnerr"
	"github.com/brackenfield/kadnet/kbucket"
	"github.com/brackenfield/kadnet/lookup"
	"github.com/brackenfield/kadnet/protocol"
	"github.com/brackenfield/kadnet/quorum"
	"github.com/brackenfield/kadnet/rpc"
	"github.com/brackenfield/kadnet/store"
)

const alphaValue = lookup.Alpha

// Node is the DHT's public orchestrator: the single object an application
// embeds to join the network, store and fetch values, and persist/restore
// its routing state, grounded on the teacher's Tox type's role as the
// top-level handle over DHT/transport/maintenance (github.com/opd-ai/toxcore/toxcore.go).
type Node struct {
	cfg Config
	log *logrus.Entry

	self      id.Contact
	table     *kbucket.RoutingTable
	storage   store.Storage
	transport *rpc.Transport
	spider    *lookup.Spider
	quorum    *quorum.Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Listen creates a Node bound to cfg.ListenAddr and starts its maintenance
// loops. The node's identity is a fresh random ID on every call; LoadState
// restores saved neighbors but does not restore a saved identity.
func Listen(cfg Config) (*Node, error) {
	if cfg.K <= 0 {
		cfg.K = 20
	}
	log := logrus.WithField("component", "server")

	selfID, err := id.Random()
	if err != nil {
		return nil, fmt.Errorf("server: generate identity: %w", err)
	}

	table := kbucket.New(selfID, cfg.K)
	storage := store.NewForgetfulStorage(cfg.TTL)

	self := id.Contact{ID: selfID}
	transport, err := rpc.Listen(cfg.ListenAddr, self, log)
	if err != nil {
		return nil, err
	}
	if udpAddr, ok := transport.LocalAddr().(*net.UDPAddr); ok {
		self.IP = udpAddr.IP
		self.Port = uint16(udpAddr.Port)
	}

	n := &Node{
		cfg:       cfg,
		log:       log,
		self:      self,
		table:     table,
		storage:   storage,
		transport: transport,
		quorum:    quorum.NewController(),
	}
	n.spider = lookup.NewSpider(&transportFinder{t: transport}, cfg.K, log)

	handler := protocol.NewHandler(&protocol.Node{
		Self:      self,
		Table:     table,
		Storage:   storage,
		Transport: transport,
		K:         cfg.K,
		Log:       log,
	})
	handler.Register(transport)

	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.wg.Add(3)
	go n.republishLoop()
	go n.refreshLoop()
	go n.pingLoop()

	return n, nil
}

// Self returns the node's own contact info.
func (n *Node) Self() id.Contact {
	return n.self
}

// Stop halts the maintenance loops and closes the transport.
func (n *Node) Stop() error {
	n.cancel()
	n.wg.Wait()
	return n.transport.Close()
}

// Bootstrap seeds the routing table with known contacts and runs an
// initial FIND_NODE lookup for the node's own ID to populate neighboring
// buckets, per spec.md §4.5's join behavior.
func (n *Node) Bootstrap(ctx context.Context, seeds []id.Contact) error {
	if len(seeds) == 0 {
		return kadnerr.ErrNoKnownNeighbors
	}
	for _, s := range seeds {
		n.table.AddContact(s)
	}
	n.spider.FindNode(ctx, n.self.ID, seeds)
	return nil
}

// Set stores a value under the digest of key on the W closest nodes to it,
// per spec.md §4.6. It returns an error if fewer than W stores succeed.
func (n *Node) Set(ctx context.Context, key []byte, v any) error {
	value, ok := store.FromAny(v)
	if !ok {
		return kadnerr.ErrBadValueType
	}
	return n.storeAt(ctx, id.Digest(key), value)
}

// SetDigest stores a value directly under a caller-chosen NodeID digest
// (spec.md §4.6's set_digest), used when the caller already has a
// consistent 160-bit key rather than raw bytes to hash.
func (n *Node) SetDigest(ctx context.Context, key id.NodeID, v any) error {
	value, ok := store.FromAny(v)
	if !ok {
		return kadnerr.ErrBadValueType
	}
	return n.storeAt(ctx, key, value)
}

func (n *Node) storeAt(ctx context.Context, key id.NodeID, value store.Value) error {
	n.storage.Set(key, value) // read-your-writes: always keep a local copy too

	_, w, _ := n.quorum.RWN()
	targets := n.table.FindNeighbors(key, n.cfg.K, nil)
	if len(targets) == 0 {
		targets = []id.Contact{n.self}
	}

	successes := 0
	for _, peer := range targets {
		if peer.ID == n.self.ID {
			successes++
			continue
		}
		start := time.Now()
		_, err := n.transport.Call(ctx, peer, &rpc.Message{Kind: rpc.KindStore, Key: key, Value: value})
		if err != nil {
			n.quorum.RecordFailure()
			continue
		}
		n.quorum.RecordLatency(time.Since(start))
		n.quorum.RecordSuccess()
		successes++
		if successes >= w {
			break
		}
	}
	if successes < w {
		return fmt.Errorf("server: set: only %d/%d stores succeeded (w=%d): %w", successes, len(targets), w, kadnerr.ErrPeerGone)
	}
	return nil
}

// Get retrieves the value stored under the digest of key, trying local
// storage first (spec.md §9's read-your-writes shortcut) before falling
// back to an iterative FIND_VALUE lookup across the network.
func (n *Node) Get(ctx context.Context, key []byte) (any, bool, error) {
	return n.getDigest(ctx, id.Digest(key))
}

// GetDigest mirrors Get for a caller-supplied NodeID digest (the read-side
// counterpart to SetDigest).
func (n *Node) GetDigest(ctx context.Context, key id.NodeID) (any, bool, error) {
	return n.getDigest(ctx, key)
}

func (n *Node) getDigest(ctx context.Context, key id.NodeID) (any, bool, error) {
	if v, ok := n.storage.Get(key, store.Value{}); ok {
		return v.Any(), true, nil
	}

	seed := n.table.FindNeighbors(key, n.cfg.K, nil)
	if len(seed) == 0 {
		n.log.WithError(kadnerr.ErrNoKnownNeighbors).Warn("get: no neighbors to ask")
		return nil, false, nil
	}

	cacher := func(peer id.Contact, v store.Value) {
		ctx, cancel := context.WithTimeout(context.Background(), rpc.DefaultTimeout)
		defer cancel()
		_, _ = n.transport.Call(ctx, peer, &rpc.Message{Kind: rpc.KindStore, Key: key, Value: v})
	}

	v, ok := n.spider.FindValue(ctx, key, seed, cacher)
	if !ok {
		return nil, false, nil
	}
	return v.Any(), true, nil
}
