package kbucket

import (
	"net"
	"testing"

	"github.com/brackenfield/kadnet/id"
)

func contact(name string, port uint16) id.Contact {
	return id.Contact{ID: id.Digest([]byte(name)), IP: net.ParseIP("127.0.0.1"), Port: port}
}

func TestAddContactThenIsKnown(t *testing.T) {
	home := id.Digest([]byte("home"))
	rt := New(home, DefaultK)

	c := contact("peer-1", 9001)
	rt.AddContact(c)

	if rt.IsNewNode(c) {
		t.Fatalf("expected contact to be known after AddContact")
	}
	if rt.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", rt.Len())
	}
}

func TestFillBucketThenSplitAllowsMoreContacts(t *testing.T) {
	home := id.Digest([]byte("home"))
	rt := New(home, 4) // small k to reach capacity quickly in a test

	for i := 0; i < 64; i++ {
		rt.AddContact(contact(string(rune('a'+i%26))+string(rune(i)), uint16(9000+i)))
	}

	if rt.Len() == 0 {
		t.Fatalf("expected contacts to be retained via bucket splitting, got 0")
	}
	if len(rt.Buckets()) < 2 {
		t.Fatalf("expected the routing table to have split into more than one bucket")
	}
}

func TestBucketsPartitionContiguously(t *testing.T) {
	home := id.Digest([]byte("home"))
	rt := New(home, 2)

	for i := 0; i < 40; i++ {
		rt.AddContact(contact(string(rune(i))+"-x", uint16(9500+i)))
	}

	buckets := rt.Buckets()
	for i := 1; i < len(buckets); i++ {
		_, prevHi := buckets[i-1].Range()
		lo, _ := buckets[i].Range()
		if prevHi != lo {
			t.Fatalf("bucket %d hi (%s) does not meet bucket %d lo (%s)", i-1, prevHi, i, lo)
		}
	}
	for _, b := range buckets {
		if b.LiveLen() > b.k {
			t.Fatalf("bucket live list exceeds k: %d > %d", b.LiveLen(), b.k)
		}
	}
}

func TestRemoveContactDropsLiveContact(t *testing.T) {
	home := id.Digest([]byte("home"))
	rt := New(home, DefaultK)

	c := contact("only-one", 8000)
	rt.AddContact(c)
	rt.RemoveContact(c)

	if !rt.IsNewNode(c) {
		t.Fatalf("expected contact to be removed")
	}
}

func TestFindNeighborsOrdersByDistance(t *testing.T) {
	home := id.Digest([]byte("home"))
	rt := New(home, DefaultK)

	for i := 0; i < 10; i++ {
		rt.AddContact(contact(string(rune('a'+i)), uint16(9100+i)))
	}

	target := id.Digest([]byte("target"))
	neighbors := rt.FindNeighbors(target, 5, nil)
	if len(neighbors) == 0 {
		t.Fatalf("expected some neighbors")
	}
	for i := 1; i < len(neighbors); i++ {
		d1 := id.Xor(target, neighbors[i-1].ID)
		d2 := id.Xor(target, neighbors[i].ID)
		if d2.Less(d1) {
			t.Fatalf("FindNeighbors not sorted by ascending distance at index %d", i)
		}
	}
}

func TestFindNeighborsRespectsExclude(t *testing.T) {
	home := id.Digest([]byte("home"))
	rt := New(home, DefaultK)
	c := contact("excluded", 9999)
	rt.AddContact(c)

	out := rt.FindNeighbors(c.ID, 5, map[id.NodeID]bool{c.ID: true})
	for _, n := range out {
		if n.ID == c.ID {
			t.Fatalf("excluded contact %s should not appear in results", c.ID)
		}
	}
}
