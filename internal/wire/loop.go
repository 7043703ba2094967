package wire

import (
	"context"
	"errors"
	"log/slog"
	"net"
)

// PacketHandler processes one decoded datagram.
type PacketHandler func(ctx context.Context, r Record, from net.Addr)

// ServePackets reads datagrams from conn until ctx is done or conn is closed.
// Malformed datagrams are logged and skipped.
func ServePackets(ctx context.Context, conn net.PacketConn, logger *slog.Logger, handle PacketHandler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	buf := make([]byte, 2*RecordSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("read datagram", "error", err)
			continue
		}
		r, err := Decode(buf[:n])
		if err != nil {
			logger.Warn("malformed datagram", "addr", from.String(), "bytes", n, "error", err)
			continue
		}
		handle(ctx, r, from)
	}
}
