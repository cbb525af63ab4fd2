// Package quorum implements the Dynamic Quorum Controller (spec.md §4.7):
// adaptive read/write fanout (R, W) against a fixed replication factor N,
// tuned from a sliding window of observed RPC latencies and a running
// failure count, grounded on the teacher's transport.NetworkMonitor
// (github.com/opd-ai/toxcore/transport/network_monitor.go), which tracks a
// similar rolling window of connection-health samples to drive its own
// adaptive alerting.
package quorum

import (
	"sync"
	"time"
)

// Defaults per spec.md §4.7.
const (
	DefaultR = 1
	DefaultW = 1
	DefaultN = 3

	// WindowSize bounds the sliding latency window.
	WindowSize = 100

	// AdjustInterval is the minimum time between adjustments.
	AdjustInterval = 5 * time.Second

	// HighLatencyThreshold and FailureThreshold gate when the controller
	// widens fanout in response to degraded conditions.
	HighLatencyThreshold = time.Second
	FailureThreshold     = 3
)

// Controller tracks recent RPC outcomes and derives the read/write quorum
// sizes the rest of the DHT should use for the next round of operations. It
// never lets R+W fall to N or below, restoring the invariant by widening R
// first, and W only once R has reached N, whenever an adjustment would
// otherwise violate it.
type Controller struct {
	mu sync.Mutex

	n int
	r int
	w int

	latencies  []time.Duration // sliding window, oldest first
	failures   int
	lastAdjust time.Time
	now        func() time.Time
}

// NewController creates a Controller with spec.md §4.7's defaults. The
// stated defaults (R=1, W=1, N=3) do not themselves satisfy R+W>N, so
// construction immediately restores the invariant the same way a later
// adjustment would, per the resolved Open Question in this component's
// design notes.
func NewController() *Controller {
	c := &Controller{
		n:   DefaultN,
		r:   DefaultR,
		w:   DefaultW,
		now: time.Now,
	}
	c.restoreInvariantLocked()
	return c
}

// SetClock overrides the time source, for deterministic tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// RWN returns the controller's current (R, W, N) fanout.
func (c *Controller) RWN() (r, w, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.r, c.w, c.n
}

// RecordLatency adds a completed RPC's round-trip time to the sliding
// window, dropping the oldest sample once WindowSize is exceeded, then
// evaluates whether an adjustment is due.
func (c *Controller) RecordLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = append(c.latencies, d)
	if len(c.latencies) > WindowSize {
		c.latencies = c.latencies[len(c.latencies)-WindowSize:]
	}
	c.maybeAdjustLocked()
}

// RecordFailure increments the failure counter and evaluates whether an
// adjustment is due.
func (c *Controller) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.maybeAdjustLocked()
}

// RecordSuccess resets the failure counter, reflecting recovered health.
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
}

func (c *Controller) averageLatencyLocked() time.Duration {
	if len(c.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range c.latencies {
		total += d
	}
	return total / time.Duration(len(c.latencies))
}

// maybeAdjustLocked applies spec.md §4.7's adjustment rule at most once per
// AdjustInterval: under high observed latency or repeated failure, widen
// fanout toward N to trade more redundancy for reliability; once conditions
// recover, relax back toward the defaults. c.mu must be held.
func (c *Controller) maybeAdjustLocked() {
	now := c.now()
	if !c.lastAdjust.IsZero() && now.Sub(c.lastAdjust) < AdjustInterval {
		return
	}
	c.lastAdjust = now

	degraded := c.averageLatencyLocked() > HighLatencyThreshold || c.failures > FailureThreshold

	if degraded {
		if c.r < c.n {
			c.r++
		}
		if c.w < c.n {
			c.w++
		}
	} else {
		if c.r > DefaultR {
			c.r--
		}
		if c.w > DefaultW {
			c.w--
		}
	}

	c.restoreInvariantLocked()
}

// restoreInvariantLocked enforces R+W>N, per spec.md §4.7's explicit
// invariant, by widening R first (reads are cheaper to fan out than writes)
// and only reaching for W once R has grown as far as N.
func (c *Controller) restoreInvariantLocked() {
	for c.r+c.w <= c.n {
		if c.r < c.n {
			c.r++
		} else {
			c.w++
		}
	}
}
