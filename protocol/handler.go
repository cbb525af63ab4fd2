// Package protocol implements the DHT node's request-side behavior: routing
// each inbound RPC kind to the right local operation and, on every inbound
// message regardless of kind, applying the welcome-if-new side effect from
// spec.md §4.5. Grounded on the teacher's BootstrapManager.HandlePacket
// dispatch switch (github.com/opd-ai/toxcore/dht/handler.go).
package protocol

import (
	"context"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/kbucket"
	"github.com/brackenfield/kadnet/rpc"
	"github.com/brackenfield/kadnet/store"
)

// Node is the subset of node state a protocol Handler needs: its own
// identity, routing table, and local storage. Transport is optional; when
// set, a newly welcomed contact is pushed a copy of any key it is now
// closer to than this node's own current holders, per original_source's
// protocol.KademliaProtocol.welcome_if_new.
type Node struct {
	Self      id.Contact
	Table     *kbucket.RoutingTable
	Storage   store.Storage
	Transport *rpc.Transport
	K         int
	Log       *logrus.Entry
}

// Handler dispatches inbound RPC requests to Node operations, grounded on
// BootstrapManager.HandlePacket's switch-on-packet-type shape.
type Handler struct {
	node *Node
}

// NewHandler builds a request Handler bound to node.
func NewHandler(node *Node) *Handler {
	if node.Log == nil {
		node.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{node: node}
}

// Register installs all of the Handler's methods on a Transport, per
// spec.md §4.3's RPC set (PING, STORE, FIND_NODE, FIND_VALUE, STUN).
func (h *Handler) Register(t *rpc.Transport) {
	t.RegisterHandler(rpc.KindPing, h.handlePing)
	t.RegisterHandler(rpc.KindStore, h.handleStore)
	t.RegisterHandler(rpc.KindFindNode, h.handleFindNode)
	t.RegisterHandler(rpc.KindFindValue, h.handleFindValue)
	t.RegisterHandler(rpc.KindStun, h.handleStun)
}

// welcomeIfNew implements spec.md §4.5: any inbound message from a contact
// not already in the routing table triggers add_contact for it, so a node
// is discovered the moment it first speaks, not only when explicitly looked up.
// Before adding it, it is offered a copy of every locally held key that it
// is now a better holder of than this node's own current neighbor set,
// mirroring original_source's welcome_if_new key handoff.
func (h *Handler) welcomeIfNew(from id.Contact) {
	if from.ID == (id.NodeID{}) {
		return // no sender identity attached (e.g. in unit tests); nothing to welcome
	}
	if !h.node.Table.IsNewNode(from) {
		return
	}
	h.node.Log.WithField("peer", from.ID.String()).Debug("welcoming newly seen contact")
	h.replicateOwnedKeysTo(from)
	h.node.Table.AddContact(from)
}

// replicateOwnedKeysTo pushes a Store RPC for each locally held key that
// newNode is closer to than the current furthest of this node's k nearest
// neighbors, provided this node itself is still closer than their nearest -
// i.e. this node is the key's authoritative holder handing off to a newer,
// better-placed one. Each push is fire-and-forget; a failed handoff just
// means newNode learns the key later via republish.
func (h *Handler) replicateOwnedKeysTo(newNode id.Contact) {
	if h.node.Transport == nil {
		return
	}
	type kv struct {
		key   id.NodeID
		value store.Value
	}
	var owned []kv
	h.node.Storage.Iterate(func(k id.NodeID, v store.Value) bool {
		owned = append(owned, kv{key: k, value: v})
		return true
	})

	for _, entry := range owned {
		neighbors := h.node.Table.FindNeighbors(entry.key, h.node.K, nil)
		if len(neighbors) == 0 {
			continue
		}
		furthest := neighbors[len(neighbors)-1]
		closest := neighbors[0]
		newNodeCloser := id.Xor(newNode.ID, entry.key).Less(id.Xor(furthest.ID, entry.key))
		selfCloser := id.Xor(h.node.Self.ID, entry.key).Less(id.Xor(closest.ID, entry.key))
		if !newNodeCloser || !selfCloser {
			continue
		}
		go func(key id.NodeID, v store.Value) {
			ctx, cancel := context.WithTimeout(context.Background(), rpc.DefaultTimeout)
			defer cancel()
			_, _ = h.node.Transport.Call(ctx, newNode, &rpc.Message{Kind: rpc.KindStore, Key: key, Value: v})
		}(entry.key, entry.value)
	}
}

func (h *Handler) handlePing(from id.Contact, req *rpc.Message) (*rpc.Message, error) {
	h.welcomeIfNew(from)
	return &rpc.Message{Kind: rpc.KindPong}, nil
}

func (h *Handler) handleStore(from id.Contact, req *rpc.Message) (*rpc.Message, error) {
	h.welcomeIfNew(from)
	h.node.Storage.Set(req.Key, req.Value)
	h.node.Log.WithFields(logrus.Fields{
		"key":  req.Key.String(),
		"peer": from.ID.String(),
	}).Debug("stored value from peer")
	return &rpc.Message{Kind: rpc.KindStoreAck, Key: req.Key}, nil
}

func (h *Handler) handleFindNode(from id.Contact, req *rpc.Message) (*rpc.Message, error) {
	h.welcomeIfNew(from)
	exclude := map[id.NodeID]bool{from.ID: true}
	neighbors := h.node.Table.FindNeighbors(req.Target, h.node.K, exclude)
	return &rpc.Message{Kind: rpc.KindFindNodeReply, Contacts: neighbors}, nil
}

func (h *Handler) handleFindValue(from id.Contact, req *rpc.Message) (*rpc.Message, error) {
	h.welcomeIfNew(from)
	if v, ok := h.node.Storage.Get(req.Target, store.Value{}); ok {
		return &rpc.Message{Kind: rpc.KindFindValueReply, ValueFound: true, FoundValue: v}, nil
	}
	exclude := map[id.NodeID]bool{from.ID: true}
	neighbors := h.node.Table.FindNeighbors(req.Target, h.node.K, exclude)
	return &rpc.Message{Kind: rpc.KindFindValueReply, ValueFound: false, Contacts: neighbors}, nil
}

// handleStun answers a STUN request with the address the datagram appeared
// to come from, letting a peer discover its own externally visible address
// (spec.md's minimal STUN echo, distilled from the teacher's much larger
// transport.STUNClient to the single operation the DHT spec actually needs).
func (h *Handler) handleStun(from id.Contact, req *rpc.Message) (*rpc.Message, error) {
	h.welcomeIfNew(from)
	addr := net.JoinHostPort(from.IP.String(), strconv.Itoa(int(from.Port)))
	return &rpc.Message{Kind: rpc.KindStunReply, StunAddr: addr}, nil
}
