package registry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodi-net/lodi/internal/logging"
	"github.com/lodi-net/lodi/internal/wire"
)

func startServer(t *testing.T, store Store) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(NewService(store, logging.Discard()), logging.Discard())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, conn)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return conn.LocalAddr().String()
}

func TestClientRegisterAndLookup(t *testing.T) {
	addr := startServer(t, NewMemoryStore(DefaultCapacity))
	client := NewClient(addr, time.Second)
	ctx := context.Background()

	_, found, err := client.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.Register(ctx, 7, 13))

	key, found, err := client.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(13), key)
}

func TestServerAcknowledgesWhenFull(t *testing.T) {
	store := NewMemoryStore(1)
	addr := startServer(t, store)
	client := NewClient(addr, time.Second)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx, 1, 13))
	require.NoError(t, client.Register(ctx, 2, 13))

	_, found, err := client.Lookup(ctx, 2)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestServerDropsUnknownKinds(t *testing.T) {
	addr := startServer(t, NewMemoryStore(DefaultCapacity))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := wire.Exchange(ctx, addr, wire.Record{Kind: wire.KindLogin, UserID: 7}, time.Second)
	assert.Error(t, err)
}

func TestClientTimesOutOnSilentPeer(t *testing.T) {
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	client := NewClient(silent.LocalAddr().String(), 100*time.Millisecond)
	start := time.Now()
	_, _, err = client.Lookup(context.Background(), 7)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
