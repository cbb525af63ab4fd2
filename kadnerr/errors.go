// Package kadnerr defines the sentinel error taxonomy shared by every layer
// of the DHT: transport, routing, storage, and the server facade all raise
// (or wrap) these instead of ad hoc error strings, so callers can
// errors.Is against a stable set.
package kadnerr

import "errors"

var (
	// ErrTransportTimeout means no reply arrived within an RPC's deadline.
	ErrTransportTimeout = errors.New("kadnet: transport timeout")

	// ErrPeerGone means a stale contact failed a liveness probe and was evicted.
	ErrPeerGone = errors.New("kadnet: peer unreachable, evicted")

	// ErrBadValueType means Server.Set was called with an unsupported value type.
	ErrBadValueType = errors.New("kadnet: unsupported value type")

	// ErrNoKnownNeighbors means a lookup was attempted with an empty routing table.
	ErrNoKnownNeighbors = errors.New("kadnet: no known neighbors")

	// ErrDeserialization means an inbound datagram could not be parsed.
	ErrDeserialization = errors.New("kadnet: malformed datagram")

	// ErrStateLoad means a persisted bootstrap cache could not be read.
	ErrStateLoad = errors.New("kadnet: could not load saved state")

	// ErrOversizeDatagram means an outbound frame exceeded the transport's MTU.
	ErrOversizeDatagram = errors.New("kadnet: datagram exceeds maximum size")

	// ErrClosed means an operation was attempted after Server.Stop.
	ErrClosed = errors.New("kadnet: server stopped")
)
