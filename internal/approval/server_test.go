package approval

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodi-net/lodi/internal/logging"
	"github.com/lodi-net/lodi/internal/notification"
	"github.com/lodi-net/lodi/internal/registry"
	"github.com/lodi-net/lodi/internal/signature"
	"github.com/lodi-net/lodi/internal/wire"
)

func startApprovalServer(t *testing.T, pushTimeout time.Duration) string {
	t.Helper()
	keys := signature.DefaultKeyPair()
	reg := registry.NewService(registry.NewMemoryStore(registry.DefaultCapacity), logging.Discard())
	require.NoError(t, reg.Register(context.Background(), userID, keys.Public))

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	svc := NewService(NewMemoryDeviceStore(DefaultDeviceCapacity), reg, signature.NewToyRSA(keys.Modulus),
		notification.NewPacketNotifier(conn), logging.Discard(), Config{PushTimeout: pushTimeout})
	srv := NewServer(svc, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
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

func send(t *testing.T, conn net.PacketConn, to string, r wire.Record) {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", to)
	require.NoError(t, err)
	require.NoError(t, wire.SendTo(conn, addr, r))
}

func receive(t *testing.T, conn net.PacketConn) wire.Record {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, wire.RecordSize)
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	r, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	return r
}

func registerDevice(t *testing.T, server string) net.PacketConn {
	t.Helper()
	device, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { device.Close() })

	keys := signature.DefaultKeyPair()
	ts := uint64(time.Now().Unix())
	send(t, device, server, wire.Record{Kind: wire.KindRegisterTFA, UserID: userID, Timestamp: ts, Signature: signature.Sign(ts, keys.Private, keys.Modulus)})

	confirm := receive(t, device)
	require.Equal(t, wire.KindConfirmTFA, confirm.Kind)
	require.Equal(t, uint32(userID), confirm.UserID)
	send(t, device, server, wire.Record{Kind: wire.KindAckRegTFA, UserID: userID})
	return device
}

func TestServerPushRoundTrip(t *testing.T) {
	server := startApprovalServer(t, time.Second)
	device := registerDevice(t, server)

	client := NewClient(server, time.Second)
	result := make(chan bool, 1)
	go func() {
		ok, err := client.RequestApproval(context.Background(), userID)
		assert.NoError(t, err)
		result <- ok
	}()

	push := receive(t, device)
	require.Equal(t, wire.KindPushTFA, push.Kind)
	send(t, device, server, wire.Record{Kind: wire.KindAckPushTFA, UserID: userID})

	assert.True(t, <-result)
}

func TestServerPushDenied(t *testing.T) {
	server := startApprovalServer(t, time.Second)
	device := registerDevice(t, server)

	client := NewClient(server, time.Second)
	result := make(chan bool, 1)
	go func() {
		ok, _ := client.RequestApproval(context.Background(), userID)
		result <- ok
	}()

	receive(t, device)
	send(t, device, server, wire.Record{Kind: wire.KindDenyPushTFA, UserID: userID})
	assert.False(t, <-result)
}

func TestServerFailsUnregisteredUser(t *testing.T) {
	server := startApprovalServer(t, time.Second)

	ok, err := NewClient(server, time.Second).RequestApproval(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServerFailsOnDeviceSilence(t *testing.T) {
	server := startApprovalServer(t, 50*time.Millisecond)
	registerDevice(t, server)

	ok, err := NewClient(server, 50*time.Millisecond).RequestApproval(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServerDropsBadRegistration(t *testing.T) {
	server := startApprovalServer(t, time.Second)
	device, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer device.Close()

	send(t, device, server, wire.Record{Kind: wire.KindRegisterTFA, UserID: userID, Timestamp: 10, Signature: 11})

	require.NoError(t, device.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, wire.RecordSize)
	_, _, err = device.ReadFrom(buf)
	assert.Error(t, err, "a rejected registration gets no reply")
}
