package registry

import (
	"context"
	"log/slog"
	"net"

	"github.com/lodi-net/lodi/internal/wire"
)

// Server exposes the registry over connectionless request/response.
type Server struct {
	service *Service
	logger  *slog.Logger
}

// NewServer constructs a registry datagram server.
func NewServer(service *Service, logger *slog.Logger) *Server {
	return &Server{service: service, logger: logger}
}

// Serve handles datagrams on conn until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	s.logger.Info("registry listening", "addr", conn.LocalAddr().String())
	return wire.ServePackets(ctx, conn, s.logger, func(ctx context.Context, req wire.Record, from net.Addr) {
		reply, ok := s.handle(ctx, req)
		if !ok {
			return
		}
		if err := wire.SendTo(conn, from, reply); err != nil {
			s.logger.Warn("registry reply failed", "kind", reply.Kind.String(), "addr", from.String(), "error", err)
		}
	})
}

func (s *Server) handle(ctx context.Context, req wire.Record) (wire.Record, bool) {
	switch req.Kind {
	case wire.KindRegisterKey:
		// Registration is always acknowledged. Register logs its own failures.
		if err := s.service.Register(ctx, req.UserID, req.PublicKey); err != nil {
			s.logger.Debug("registry.register acknowledged despite failure", "user_id", req.UserID)
		}
		return wire.Record{Kind: wire.KindAckRegisterKey, UserID: req.UserID, PublicKey: req.PublicKey}, true
	case wire.KindRequestKey:
		key, found, err := s.service.Lookup(ctx, req.UserID)
		if err != nil {
			return wire.Record{}, false
		}
		reply := wire.Record{Kind: wire.KindResponsePublicKey, UserID: req.UserID, PublicKey: key}
		if found {
			reply.Flags |= wire.FlagFound
		}
		return reply, true
	default:
		s.logger.Warn("registry: unknown message kind", "kind", req.Kind.String(), "user_id", req.UserID)
		return wire.Record{}, false
	}
}
