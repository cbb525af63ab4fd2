package rpc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout is how long a caller waits for a reply before the pending
// RPC is treated as failed (spec.md §4.3).
const DefaultTimeout = 5 * time.Second

// pendingRPC tracks one outstanding request awaiting a correlated reply.
type pendingRPC struct {
	logID   string // uuid used only for log correlation, never the wire correlation id
	created time.Time
	reply   chan *Message
}

// pendingTable matches replies to requests by correlation id, grounded on
// the teacher's transport handler-registration map (RegisterHandler),
// generalized from a static per-packet-type table to a per-request dynamic
// table since RPC replies must route back to one specific caller rather
// than to a type-wide handler.
type pendingTable struct {
	mu      sync.Mutex
	entries map[uint64]*pendingRPC
	nextID  uint64
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uint64]*pendingRPC)}
}

// register allocates a fresh correlation id and returns it along with the
// channel that will receive the matching reply.
func (t *pendingTable) register() (uint64, <-chan *Message, string) {
	id := atomic.AddUint64(&t.nextID, 1)
	logID := uuid.New().String()
	p := &pendingRPC{logID: logID, created: time.Now(), reply: make(chan *Message, 1)}

	t.mu.Lock()
	t.entries[id] = p
	t.mu.Unlock()

	return id, p.reply, logID
}

// resolve delivers a reply to its waiting caller, if one is still pending.
func (t *pendingTable) resolve(correlationID uint64, m *Message) bool {
	t.mu.Lock()
	p, ok := t.entries[correlationID]
	if ok {
		delete(t.entries, correlationID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.reply <- m
	return true
}

// cancel removes a pending entry without a reply, e.g. after a timeout.
func (t *pendingTable) cancel(correlationID uint64) {
	t.mu.Lock()
	delete(t.entries, correlationID)
	t.mu.Unlock()
}
