// Package store implements the node-local key/value storage the DHT serves
// FIND_VALUE and STORE against: a TTL'd insertion-ordered map
// (ForgetfulStorage) and an optional Adaptive Replacement Cache variant
// (ARCStorage). Both share the Storage capability set so the server and
// protocol handlers never depend on which variant is wired in.
package store

import (
	"time"

	"github.com/brackenfield/kadnet/id"
)

// Entry is a stored record: the monotonic time it was last written, and
// its value.
type Entry struct {
	Birthday time.Time
	Value    Value
}

// Storage is the capability set both storage variants implement: set,
// get-with-default, iterate all (key, value) pairs, and iterate entries
// older than a given age.
type Storage interface {
	// Set is last-writer-wins: it overwrites birthday and value.
	Set(key id.NodeID, v Value)

	// Get returns the stored value, or def if the key is absent. It never
	// raises, per spec.md §4.2.
	Get(key id.NodeID, def Value) (Value, bool)

	// Iterate yields every (key, value) pair currently retained, in
	// insertion order for ForgetfulStorage (post-cull).
	Iterate(func(key id.NodeID, v Value) bool)

	// IterateOlderThan yields (key, value) pairs whose birthday is at or
	// before now-delta.
	IterateOlderThan(delta time.Duration, now time.Time, fn func(key id.NodeID, v Value) bool)

	// Len reports the number of entries currently retained.
	Len() int
}
