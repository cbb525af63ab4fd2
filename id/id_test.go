package id

import (
	"net"
	"testing"
)

func TestXorSymmetricAndZero(t *testing.T) {
	a := Digest([]byte("A"))
	b := Digest([]byte("B"))

	if Xor(a, a) != (Distance{}) {
		t.Fatalf("distance(a,a) must be zero")
	}
	if Xor(a, b) != Xor(b, a) {
		t.Fatalf("distance(a,b) must equal distance(b,a)")
	}
}

func TestDistanceLessOrdering(t *testing.T) {
	target := Digest([]byte("target"))
	near := Digest([]byte("near"))
	far := Digest([]byte("far-far-away"))

	dNear := Xor(target, near)
	dFar := Xor(target, far)

	if !dNear.Less(dFar) && !dFar.Less(dNear) && dNear != dFar {
		t.Fatalf("expected a strict order between distinct distances")
	}
	// distance to self is always smallest
	if !Xor(target, target).Less(dNear) && Xor(target, target) != dNear {
		t.Fatalf("zero distance must be <= any other distance")
	}
}

func TestPrefixLenIdentical(t *testing.T) {
	a := Digest([]byte("same"))
	if got := PrefixLen(a, a); got != Size*8 {
		t.Fatalf("PrefixLen(a,a) = %d, want %d", got, Size*8)
	}
}

func TestPrefixLenDiffersAtFirstBit(t *testing.T) {
	var a, b NodeID
	a[0] = 0b1000_0000
	b[0] = 0b0000_0000
	if got := PrefixLen(a, b); got != 0 {
		t.Fatalf("PrefixLen = %d, want 0", got)
	}
}

func TestSameHome(t *testing.T) {
	c1 := Contact{ID: Digest([]byte("1")), IP: net.ParseIP("127.0.0.1"), Port: 8468}
	c2 := Contact{ID: Digest([]byte("2")), IP: net.ParseIP("127.0.0.1"), Port: 8468}
	c3 := Contact{ID: Digest([]byte("3")), IP: net.ParseIP("127.0.0.1"), Port: 8469}

	if !c1.SameHome(c2) {
		t.Fatalf("expected same home for identical ip:port with different ids")
	}
	if c1.SameHome(c3) {
		t.Fatalf("expected different home for different ports")
	}
}

func TestRandomIsNotZero(t *testing.T) {
	n, err := Random()
	if err != nil {
		t.Fatalf("Random() error = %v", err)
	}
	if n == (NodeID{}) {
		t.Fatalf("Random() returned the zero id (statistically near-impossible)")
	}
}
