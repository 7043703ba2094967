package notification

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/lodi-net/lodi/internal/wire"
)

// KindPushApproval asks a registered device to approve a pending login.
const KindPushApproval = "push_approval"

// Message describes a prompt sent to a registered device.
type Message struct {
	Kind        string
	Destination string
	UserID      uint32
}

// Notifier delivers prompts to devices.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// PacketNotifier delivers prompts as datagrams from the service's own socket,
// so device replies come back to the same listener.
type PacketNotifier struct {
	conn net.PacketConn
}

// NewPacketNotifier wraps conn.
func NewPacketNotifier(conn net.PacketConn) *PacketNotifier {
	return &PacketNotifier{conn: conn}
}

// Send resolves the destination and writes a pushTFA record.
func (n *PacketNotifier) Send(_ context.Context, message Message) error {
	addr, err := net.ResolveUDPAddr("udp", message.Destination)
	if err != nil {
		return err
	}
	return wire.SendTo(n.conn, addr, wire.Record{Kind: wire.KindPushTFA, UserID: message.UserID})
}

// LoggerNotifier writes prompts to the structured logger and remembers them.
type LoggerNotifier struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send records the message and logs it.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	n.sent = append(n.sent, message)
	n.mu.Unlock()
	if n.logger != nil {
		n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "user_id", message.UserID)
	}
	return nil
}

// Sent returns a copy of every message sent so far.
func (n *LoggerNotifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.sent))
	copy(out, n.sent)
	return out
}
