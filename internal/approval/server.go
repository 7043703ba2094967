package approval

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/lodi-net/lodi/internal/wire"
)

// Server exposes the approval service over connectionless request/response.
type Server struct {
	service *Service
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewServer constructs an approval datagram server.
func NewServer(service *Service, logger *slog.Logger) *Server {
	return &Server{service: service, logger: logger}
}

// Serve handles datagrams on conn until ctx is cancelled. Registrations and
// approval requests run on their own goroutines so a slow device only stalls
// its own user.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	s.logger.Info("approval service listening", "addr", conn.LocalAddr().String())
	err := wire.ServePackets(ctx, conn, s.logger, func(ctx context.Context, r wire.Record, from net.Addr) {
		s.dispatch(ctx, conn, r, from)
	})
	s.wg.Wait()
	return err
}

func (s *Server) dispatch(ctx context.Context, conn net.PacketConn, r wire.Record, from net.Addr) {
	switch r.Kind {
	case wire.KindRegisterTFA:
		s.spawn(func() { s.handleRegister(ctx, conn, r, from) })
	case wire.KindAckRegTFA:
		s.logger.Info("approval: device acknowledged registration", "user_id", r.UserID, "addr", from.String())
	case wire.KindRequestAuth:
		s.spawn(func() { s.handleRequestAuth(ctx, conn, r, from) })
	case wire.KindAckPushTFA, wire.KindDenyPushTFA:
		if !s.service.Deliver(r, from.String()) {
			s.logger.Warn("approval: unsolicited device reply", "kind", r.Kind.String(), "user_id", r.UserID, "addr", from.String())
		}
	default:
		// Anything else from a device we are waiting on fails that exchange.
		if s.service.Deliver(r, from.String()) {
			return
		}
		s.logger.Warn("approval: unknown message kind", "kind", r.Kind.String(), "addr", from.String())
	}
}

func (s *Server) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Server) handleRegister(ctx context.Context, conn net.PacketConn, r wire.Record, from net.Addr) {
	if err := s.service.Register(ctx, r.UserID, r.Timestamp, r.Signature, from.String()); err != nil {
		// Failed registrations are dropped without a reply.
		return
	}
	if err := wire.SendTo(conn, from, wire.Record{Kind: wire.KindConfirmTFA, UserID: r.UserID}); err != nil {
		s.logger.Warn("approval: send confirmTFA", "user_id", r.UserID, "error", err)
	}
}

func (s *Server) handleRequestAuth(ctx context.Context, conn net.PacketConn, r wire.Record, from net.Addr) {
	reply := wire.Record{Kind: wire.KindResponseAuth, UserID: r.UserID}
	if err := s.service.RequestApproval(ctx, r.UserID); err != nil {
		reply.Kind = wire.KindResponseAuthFail
		reply.Text = wire.Truncate(err.Error())
	}
	if err := wire.SendTo(conn, from, reply); err != nil {
		s.logger.Warn("approval: send result", "kind", reply.Kind.String(), "user_id", r.UserID, "error", err)
		return
	}
	s.logger.Info("approval: result sent", "kind", reply.Kind.String(), "user_id", r.UserID)
}
