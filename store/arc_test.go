package store

import (
	"testing"
	"time"

	"github.com/brackenfield/kadnet/id"
)

func key(s string) id.NodeID { return id.Digest([]byte(s)) }

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestARCInvariantsUnderLoad(t *testing.T) {
	cap := 8
	a := NewARCStorage(cap)

	for i := 0; i < 200; i++ {
		k := key(string(rune('a' + i%26)))
		a.Set(k, Int(int64(i)))
		a.Get(k, Int(0))

		t1, t2, b1, b2, _ := a.Sizes()
		if t1+t2 > cap {
			t.Fatalf("|T1|+|T2| = %d exceeds capacity %d", t1+t2, cap)
		}
		if t1+b1 > cap {
			t.Fatalf("|T1|+|B1| = %d exceeds capacity %d", t1+b1, cap)
		}
		if t1+t2+b1+b2 > 2*cap {
			t.Fatalf("total list size %d exceeds 2*capacity", t1+t2+b1+b2)
		}
	}
}

func TestARCSetThenGetRoundTrips(t *testing.T) {
	a := NewARCStorage(4)
	k := key("hello")
	a.Set(k, String("world"))

	got, ok := a.Get(k, String("missing"))
	if !ok || !got.Equal(String("world")) {
		t.Fatalf("Get() = (%v, %v), want (world, true)", got, ok)
	}
}

func TestARCMissingKeyReturnsDefault(t *testing.T) {
	a := NewARCStorage(4)
	got, ok := a.Get(key("absent"), Int(42))
	if ok || !got.Equal(Int(42)) {
		t.Fatalf("Get() = (%v, %v), want (42, false)", got, ok)
	}
}

func TestARCGhostHitPromotesToT2WithoutZeroDivision(t *testing.T) {
	// Capacity 1 maximizes the chance of a B1/B2 ghost hit with an empty
	// opposite ghost list, exercising the max(ratio,1) guard spec.md §9
	// requires instead of a divide-by-zero.
	a := NewARCStorage(1)

	a.Set(key("x"), Int(1))
	a.Get(key("x"), Value{}) // promotes x to T2
	a.Set(key("y"), Int(2))  // evicts x from T2 into the B2 ghost list
	a.Set(key("x"), Int(3))  // B2 ghost hit on x with B1 empty

	if _, ok := a.Get(key("x"), Value{}); !ok {
		t.Fatalf("expected x to be resident after re-insertion")
	}
}

func TestARCIterateOlderThanFiltersByBirthday(t *testing.T) {
	a := NewARCStorage(8)
	now := fixedNow()
	a.SetClock(func() time.Time { return now })
	a.Set(key("old"), Int(1))

	later := now.Add(2 * time.Hour)
	seen := map[string]bool{}
	a.IterateOlderThan(1*time.Hour, later, func(k id.NodeID, v Value) bool {
		seen[k.String()] = true
		return true
	})
	if !seen[key("old").String()] {
		t.Fatalf("expected old entry to be yielded as older than 1h")
	}
}
