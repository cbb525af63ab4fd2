package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/brackenfield/kadnet/id"
)

func localContact(t *testing.T, tr *Transport) id.Contact {
	t.Helper()
	addr := tr.LocalAddr().(*net.UDPAddr)
	return id.Contact{ID: id.Digest([]byte(addr.String())), IP: addr.IP, Port: uint16(addr.Port)}
}

func TestTransportPingPongRoundTrip(t *testing.T) {
	a, err := Listen("127.0.0.1:0", id.Contact{}, nil)
	if err != nil {
		t.Fatalf("Listen a: %v", err)
	}
	defer a.Close()
	b, err := Listen("127.0.0.1:0", id.Contact{}, nil)
	if err != nil {
		t.Fatalf("Listen b: %v", err)
	}
	defer b.Close()

	b.RegisterHandler(KindPing, func(from id.Contact, req *Message) (*Message, error) {
		return &Message{Kind: KindPong}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	peerB := localContact(t, b)
	reply, err := a.Call(ctx, peerB, &Message{Kind: KindPing})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.Kind != KindPong {
		t.Fatalf("reply.Kind = %v, want pong", reply.Kind)
	}
}

func TestTransportCallTimesOutWithNoResponder(t *testing.T) {
	a, err := Listen("127.0.0.1:0", id.Contact{}, nil)
	if err != nil {
		t.Fatalf("Listen a: %v", err)
	}
	defer a.Close()
	b, err := Listen("127.0.0.1:0", id.Contact{}, nil)
	if err != nil {
		t.Fatalf("Listen b: %v", err)
	}
	defer b.Close()
	// b registers no handler for ping, so a's call should time out.

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	peerB := localContact(t, b)
	_, err = a.Call(ctx, peerB, &Message{Kind: KindPing})
	if err == nil {
		t.Fatalf("expected Call to fail when no reply arrives")
	}
}
