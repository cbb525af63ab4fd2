package server

import (
	"context"

	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/rpc"
	"github.com/brackenfield/kadnet/store"
)

// transportFinder adapts an *rpc.Transport to the lookup.Finder interface,
// so the Spider never needs to know about the wire protocol.
type transportFinder struct {
	t *rpc.Transport
}

func (f *transportFinder) FindNode(ctx context.Context, peer id.Contact, target id.NodeID) ([]id.Contact, error) {
	reply, err := f.t.Call(ctx, peer, &rpc.Message{Kind: rpc.KindFindNode, Target: target})
	if err != nil {
		return nil, err
	}
	return reply.Contacts, nil
}

func (f *transportFinder) FindValue(ctx context.Context, peer id.Contact, target id.NodeID) ([]id.Contact, store.Value, bool, error) {
	reply, err := f.t.Call(ctx, peer, &rpc.Message{Kind: rpc.KindFindValue, Target: target})
	if err != nil {
		return nil, store.Value{}, false, err
	}
	if reply.ValueFound {
		return nil, reply.FoundValue, true, nil
	}
	return reply.Contacts, store.Value{}, false, nil
}
