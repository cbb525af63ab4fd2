package server

import (
	"context"
	"math/big"
	"time"

	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/rpc"
	"github.com/brackenfield/kadnet/store"
)

// republishLoop re-stores locally held values onto their k closest nodes at
// RepublishInterval, per spec.md §4.5, grounded on the teacher's
// Maintainer.lookupRoutine ticker-driven structure.
func (n *Node) republishLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.RepublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.republishOwnedKeys()
		}
	}
}

func (n *Node) republishOwnedKeys() {
	type kv struct {
		key   id.NodeID
		value store.Value
	}
	var owned []kv
	n.storage.Iterate(func(k id.NodeID, v store.Value) bool {
		owned = append(owned, kv{key: k, value: v})
		return true
	})

	for _, entry := range owned {
		targets := n.table.FindNeighbors(entry.key, n.cfg.K, nil)
		for _, peer := range targets {
			if peer.ID == n.self.ID {
				continue
			}
			ctx, cancel := context.WithTimeout(n.ctx, rpc.DefaultTimeout)
			_, _ = n.transport.Call(ctx, peer, &rpc.Message{Kind: rpc.KindStore, Key: entry.key, Value: entry.value})
			cancel()
		}
	}
}

// refreshLoop looks up a random ID in each lonely bucket's range to keep the
// routing table populated, mirroring Maintainer.lookupRoutine.
func (n *Node) refreshLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.refreshLonelyBuckets()
		}
	}
}

func (n *Node) refreshLonelyBuckets() {
	for _, b := range n.table.LonelyBuckets() {
		lo, hi := b.Range()
		target := lo
		if r, err := id.Random(); err == nil {
			loInt := new(big.Int).SetBytes(lo[:])
			span := new(big.Int).Sub(new(big.Int).SetBytes(hi[:]), loInt)
			if span.Sign() > 0 {
				off := new(big.Int).Mod(new(big.Int).SetBytes(r[:]), span)
				sum := off.Add(off, loInt).Bytes()
				target = id.NodeID{}
				copy(target[id.Size-len(sum):], sum)
			}
		}
		ctx, cancel := context.WithTimeout(n.ctx, rpc.DefaultTimeout)
		n.spider.FindNode(ctx, target, n.table.FindNeighbors(target, n.cfg.K, nil))
		cancel()
	}
}

// pingLoop liveness-checks the least-recently-seen contact of each bucket,
// mirroring Maintainer.pingRoutine.
func (n *Node) pingLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.pingStaleContacts()
		}
	}
}

func (n *Node) pingStaleContacts() {
	for _, b := range n.table.Buckets() {
		stale, ok := b.LRU()
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, rpc.DefaultTimeout)
		_, err := n.transport.Call(ctx, stale, &rpc.Message{Kind: rpc.KindPing})
		cancel()
		if err != nil {
			n.table.RemoveContact(stale)
		}
	}
}
