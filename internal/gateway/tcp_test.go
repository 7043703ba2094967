package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodi-net/lodi/internal/logging"
	"github.com/lodi-net/lodi/internal/wire"
)

type recordingHandler struct {
	sessions chan Session
}

func (h recordingHandler) ServeSession(_ context.Context, conn net.Conn, session Session) error {
	h.sessions <- session
	return wire.WriteRecord(conn, wire.Record{Kind: wire.KindAckLogout, UserID: session.UserID})
}

func startTCP(t *testing.T, f fixture, handler SessionHandler) string {
	t.Helper()
	f.svc.now = time.Now
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewTCPServer(f.svc, handler, logging.Discard(), 200*time.Millisecond).Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func dialAndSend(t *testing.T, addr string, r wire.Record) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, wire.WriteRecord(conn, r))
	return conn
}

func loginRecord(f fixture) wire.Record {
	ts := uint64(time.Now().Unix())
	return wire.Record{Kind: wire.KindLogin, UserID: testUser, Timestamp: ts, Signature: f.svc.deps.Scheme.Sign(ts, f.keys.Private)}
}

func TestTCPLoginAckAndHandoff(t *testing.T) {
	f := newFixture(t, nil)
	handler := recordingHandler{sessions: make(chan Session, 1)}
	addr := startTCP(t, f, handler)

	conn := dialAndSend(t, addr, loginRecord(f))
	ack, err := wire.ReadRecord(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindAckLogin, ack.Kind)
	assert.Equal(t, uint32(testUser), ack.UserID)
	assert.Equal(t, "login accepted", ack.Text)

	session := <-handler.sessions
	assert.Equal(t, session.ID, ack.Session)

	next, err := wire.ReadRecord(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindAckLogout, next.Kind)
}

func TestTCPRejectionClosesSilently(t *testing.T) {
	f := newFixture(t, nil)
	addr := startTCP(t, f, nil)

	bad := loginRecord(f)
	bad.Signature++
	conn := dialAndSend(t, addr, bad)

	_, err := wire.ReadRecord(conn)
	assert.True(t, errors.Is(err, io.EOF), "expected EOF, got %v", err)
	assert.Zero(t, f.approver.calls.Load())
}

func TestTCPDropsNonLoginRecords(t *testing.T) {
	f := newFixture(t, nil)
	addr := startTCP(t, f, nil)

	conn := dialAndSend(t, addr, wire.Record{Kind: wire.KindPost, UserID: testUser, Text: "hi"})
	_, err := wire.ReadRecord(conn)
	assert.Error(t, err)
	assert.Zero(t, f.approver.calls.Load())
}

func TestTCPReadDeadline(t *testing.T) {
	f := newFixture(t, nil)
	addr := startTCP(t, f, nil)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// The server gives up on a silent client and closes.
	_, err = wire.ReadRecord(conn)
	assert.True(t, errors.Is(err, io.EOF), "expected EOF, got %v", err)
}
