package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brackenfield/kadnet/id"
	"github.com/brackenfield/kadnet/kadnerr"
)

func startNode(t *testing.T) *Node {
	t.Helper()
	cfg := DefaultConfig("127.0.0.1:0")
	cfg.RepublishInterval = time.Hour
	cfg.RefreshInterval = time.Hour
	cfg.PingInterval = time.Hour
	n, err := Listen(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func TestSetThenGetOnSameNode(t *testing.T) {
	n := startNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, n.Set(ctx, []byte("key"), "value"))

	got, ok, err := n.Get(ctx, []byte("key"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", got)
}

func TestSetRejectsUnsupportedType(t *testing.T) {
	n := startNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := n.Set(ctx, []byte("key"), struct{ X int }{X: 1})
	require.ErrorIs(t, err, kadnerr.ErrBadValueType)
}

func TestGetMissingKeyOnFreshNodeReportsNotFound(t *testing.T) {
	n := startNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, ok, err := n.Get(ctx, []byte("nope"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTwoNodeBootstrapAndSetGet(t *testing.T) {
	a := startNode(t)
	b := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, b.Bootstrap(ctx, []id.Contact{a.Self()}))
	require.NoError(t, a.Bootstrap(ctx, []id.Contact{b.Self()}))

	require.NoError(t, a.Set(ctx, []byte("shared-key"), int64(42)))

	got, ok, err := b.Get(ctx, []byte("shared-key"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), got)
}

func TestBootstrapWithNoSeedsFails(t *testing.T) {
	n := startNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := n.Bootstrap(ctx, nil)
	require.ErrorIs(t, err, kadnerr.ErrNoKnownNeighbors)
}
