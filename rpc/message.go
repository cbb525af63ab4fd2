// Package rpc implements the DHT's request/reply wire protocol over UDP:
// binary framing, correlation-id-based matching of replies to outstanding
// requests, and a Transport grounded on the teacher's
// transport.UDPTransport (github.com/opd-ai/toxcore/transport/udp.go),
// generalized from a fixed packet-type-byte dispatch table to a
// registered-method dispatch table carrying typed DHT RPC payloads.
package rpc

import (
	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/store"
)

// Kind identifies the RPC method carried by a Message, mirroring the
// teacher's transport.PacketType but naming DHT operations instead of Tox
// wire packets (spec.md §4.3).
type Kind byte

const (
	KindPing Kind = iota + 1
	KindPong
	KindStore
	KindStoreAck
	KindFindNode
	KindFindNodeReply
	KindFindValue
	KindFindValueReply
	KindStun
	KindStunReply
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindStore:
		return "store"
	case KindStoreAck:
		return "store_ack"
	case KindFindNode:
		return "find_node"
	case KindFindNodeReply:
		return "find_node_reply"
	case KindFindValue:
		return "find_value"
	case KindFindValueReply:
		return "find_value_reply"
	case KindStun:
		return "stun"
	case KindStunReply:
		return "stun_reply"
	default:
		return "unknown"
	}
}

// Message is the self-describing envelope exchanged between peers: a kind,
// a correlation id used to match a reply to the request that spawned it, the
// sender's own contact (so the receiver can add/refresh it in its routing
// table per spec.md §4.5), and a kind-specific body.
type Message struct {
	Kind          Kind
	CorrelationID uint64
	Sender        id.Contact

	// Body fields; only those relevant to Kind are populated.
	Target     id.NodeID    // find_node, find_value
	Key        id.NodeID    // store, store_ack
	Value      store.Value  // store
	ValueFound bool         // find_value_reply
	FoundValue store.Value  // find_value_reply
	Contacts   []id.Contact // find_node_reply, find_value_reply (when not found)
	StunAddr   string       // stun_reply: the address the request appeared to originate from
}
