package quorum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewControllerSatisfiesInvariant(t *testing.T) {
	c := NewController()
	r, w, n := c.RWN()
	assert.Equal(t, DefaultN, n)
	assert.Greater(t, r+w, n, "R+W>N invariant must hold at construction")
}

func TestControllerWidensUnderHighLatency(t *testing.T) {
	c := NewController()
	baseR, baseW, _ := c.RWN()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := start
	c.SetClock(func() time.Time { return tick })

	for i := 0; i < 5; i++ {
		c.RecordLatency(1500 * time.Millisecond)
		tick = tick.Add(AdjustInterval + time.Second)
	}

	r, w, n := c.RWN()
	require.Equal(t, DefaultN, n)
	assert.GreaterOrEqual(t, r+w, baseR+baseW, "fanout should not shrink under sustained high latency")
	assert.Equal(t, n, r, "R should saturate at N under sustained degradation")
	assert.Equal(t, n, w, "W should saturate at N under sustained degradation")
}

func TestControllerWidensUnderRepeatedFailure(t *testing.T) {
	c := NewController()
	baseR, baseW, _ := c.RWN()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := start
	c.SetClock(func() time.Time { return tick })

	for i := 0; i < FailureThreshold+2; i++ {
		c.RecordFailure()
		tick = tick.Add(AdjustInterval + time.Second)
	}

	r, w, _ := c.RWN()
	assert.GreaterOrEqual(t, r+w, baseR+baseW, "fanout should widen, never shrink, under repeated failure")
}

func TestControllerInvariantNeverViolated(t *testing.T) {
	c := NewController()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := start
	c.SetClock(func() time.Time { return tick })

	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			c.RecordLatency(10 * time.Millisecond)
		} else {
			c.RecordFailure()
		}
		tick = tick.Add(AdjustInterval + time.Second)

		r, w, n := c.RWN()
		require.Greater(t, r+w, n, "R+W>N invariant must hold after every adjustment")
	}
}

func TestControllerRelaxesAfterRecovery(t *testing.T) {
	c := NewController()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := start
	c.SetClock(func() time.Time { return tick })

	for i := 0; i < FailureThreshold+2; i++ {
		c.RecordFailure()
		tick = tick.Add(AdjustInterval + time.Second)
	}
	widenedR, widenedW, n := c.RWN()
	require.Equal(t, n, widenedR)
	require.Equal(t, n, widenedW)

	c.RecordSuccess()
	for i := 0; i < 20; i++ {
		c.RecordLatency(time.Millisecond)
		tick = tick.Add(AdjustInterval + time.Second)
	}

	r, w, _ := c.RWN()
	assert.LessOrEqual(t, r+w, widenedR+widenedW, "fanout should relax back down after recovery")
	assert.Greater(t, r+w, n)
}
