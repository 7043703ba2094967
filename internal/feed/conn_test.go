package feed

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodi-net/lodi/internal/gateway"
	"github.com/lodi-net/lodi/internal/logging"
	"github.com/lodi-net/lodi/internal/wire"
)

type memSessions struct {
	mu   sync.Mutex
	live map[uuid.UUID]gateway.Session
}

func (m *memSessions) Session(_ context.Context, id uuid.UUID) (gateway.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live[id]
	return s, ok, nil
}

func (m *memSessions) Logout(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, id)
	return nil
}

func serveSession(t *testing.T, svc *Service, sessions *memSessions, session gateway.Session) (net.Conn, <-chan error) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })

	h := NewConnHandler(svc, sessions, logging.Discard(), time.Second)
	done := make(chan error, 1)
	go func() {
		defer server.Close()
		done <- h.ServeSession(context.Background(), server, session)
	}()
	return client, done
}

func roundTrip(t *testing.T, conn net.Conn, req wire.Record) wire.Record {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, wire.WriteRecord(conn, req))
	reply, err := wire.ReadRecord(conn)
	require.NoError(t, err)
	return reply
}

func TestConnHandlerSessionFlow(t *testing.T) {
	svc := NewService(NewMemoryRepository(), logging.Discard())
	_, err := svc.Post(context.Background(), 8, "hi from eight")
	require.NoError(t, err)

	session := gateway.Session{ID: uuid.New(), UserID: 7}
	sessions := &memSessions{live: map[uuid.UUID]gateway.Session{session.ID: session}}
	conn, done := serveSession(t, svc, sessions, session)

	ack := roundTrip(t, conn, wire.Record{Kind: wire.KindPost, Text: "hello"})
	assert.Equal(t, wire.KindAckPost, ack.Kind)
	assert.NotEqual(t, uuid.Nil, ack.Session)

	ack = roundTrip(t, conn, wire.Record{Kind: wire.KindFollow, PeerID: 8})
	assert.Equal(t, wire.KindAckFollow, ack.Kind)
	assert.Equal(t, uint32(8), ack.PeerID)

	require.NoError(t, wire.WriteRecord(conn, wire.Record{Kind: wire.KindRequestFeed}))
	var items []wire.Record
	for {
		r, err := wire.ReadRecord(conn)
		require.NoError(t, err)
		if r.Kind == wire.KindFeedEnd {
			assert.Equal(t, uint32(2), r.PeerID)
			break
		}
		require.Equal(t, wire.KindFeedItem, r.Kind)
		items = append(items, r)
	}
	require.Len(t, items, 2)
	assert.Equal(t, "hello", items[0].Text)
	assert.Equal(t, uint32(7), items[0].PeerID)
	assert.Equal(t, "hi from eight", items[1].Text)

	ack = roundTrip(t, conn, wire.Record{Kind: wire.KindFollow, PeerID: 7})
	assert.Equal(t, wire.KindError, ack.Kind)

	ack = roundTrip(t, conn, wire.Record{Kind: wire.KindLogout})
	assert.Equal(t, wire.KindAckLogout, ack.Kind)
	assert.NoError(t, <-done)

	_, live, _ := sessions.Session(context.Background(), session.ID)
	assert.False(t, live)
}

func TestConnHandlerEndsRevokedSession(t *testing.T) {
	svc := NewService(NewMemoryRepository(), logging.Discard())
	session := gateway.Session{ID: uuid.New(), UserID: 7}
	sessions := &memSessions{live: map[uuid.UUID]gateway.Session{}}
	conn, done := serveSession(t, svc, sessions, session)

	reply := roundTrip(t, conn, wire.Record{Kind: wire.KindPost, Text: "hello"})
	assert.Equal(t, wire.KindError, reply.Kind)
	assert.Equal(t, "session ended", reply.Text)
	assert.NoError(t, <-done)
}

func TestConnHandlerClientHangup(t *testing.T) {
	svc := NewService(NewMemoryRepository(), logging.Discard())
	session := gateway.Session{ID: uuid.New(), UserID: 7}
	sessions := &memSessions{live: map[uuid.UUID]gateway.Session{session.ID: session}}
	conn, done := serveSession(t, svc, sessions, session)

	require.NoError(t, conn.Close())
	assert.NoError(t, <-done)
}

func TestConnHandlerClientHangupAfterRequest(t *testing.T) {
	svc := NewService(NewMemoryRepository(), logging.Discard())
	session := gateway.Session{ID: uuid.New(), UserID: 7}
	sessions := &memSessions{live: map[uuid.UUID]gateway.Session{session.ID: session}}
	conn, done := serveSession(t, svc, sessions, session)

	reply := roundTrip(t, conn, wire.Record{Kind: wire.KindFollow, PeerID: 8})
	require.Equal(t, wire.KindAckFollow, reply.Kind)

	require.NoError(t, conn.Close())
	assert.NoError(t, <-done)
}

func TestClosedByPeer(t *testing.T) {
	assert.True(t, closedByPeer(io.EOF))
	assert.True(t, closedByPeer(io.ErrClosedPipe))
	assert.True(t, closedByPeer(fmt.Errorf("read: %w", net.ErrClosed)))
	assert.False(t, closedByPeer(nil))
	assert.False(t, closedByPeer(os.ErrDeadlineExceeded))
}
