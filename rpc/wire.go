package rpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/brackenfield/kadnet/kadnerr"
)

// MaxDatagramSize bounds an encoded Message; oversize datagrams are dropped
// rather than fragmented: Encode and Decode reject them with
// ErrOversizeDatagram, Transport.Call logs a rejected outbound request at
// warn level, and the receive path drops an oversize inbound datagram with a
// debug log.
const MaxDatagramSize = 8 * 1024

// Encode serializes a Message to its wire form. gob is used rather than a
// hand-rolled binary layout because, unlike the teacher's fixed single-byte
// packet-type-plus-opaque-payload framing (transport.Packet.Serialize), DHT
// messages carry a variable-shaped, self-describing body (contact lists,
// typed Values) that benefits from a real encoder instead of manual offset
// arithmetic; gob is the standard library's own answer to that need and
// needs no external dependency.
func Encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("rpc: encode: %w", err)
	}
	if buf.Len() > MaxDatagramSize {
		return nil, kadnerr.ErrOversizeDatagram
	}
	return buf.Bytes(), nil
}

// Decode parses a wire-form datagram back into a Message.
func Decode(data []byte) (*Message, error) {
	if len(data) > MaxDatagramSize {
		return nil, kadnerr.ErrOversizeDatagram
	}
	var m Message
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", kadnerr.ErrDeserialization, err)
	}
	return &m, nil
}
