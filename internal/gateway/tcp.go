package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lodi-net/lodi/internal/wire"
)

// DefaultReadTimeout bounds how long a client has to send its login record.
const DefaultReadTimeout = 10 * time.Second

const loginAccepted = "login accepted"

// SessionHandler takes over a connection once its login has been accepted.
type SessionHandler interface {
	ServeSession(ctx context.Context, conn net.Conn, session Session) error
}

// TCPServer accepts client connections and runs the login handshake on each.
type TCPServer struct {
	svc         *Service
	handler     SessionHandler
	logger      *slog.Logger
	readTimeout time.Duration
	wg          sync.WaitGroup
}

// NewTCPServer builds the client-facing listener loop. handler may be nil, in
// which case the connection is closed right after the acknowledgment.
func NewTCPServer(svc *Service, handler SessionHandler, logger *slog.Logger, readTimeout time.Duration) *TCPServer {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &TCPServer{svc: svc, handler: handler, logger: logger, readTimeout: readTimeout}
}

// Serve accepts connections until ctx is done, then waits for open
// connections to finish.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer s.wg.Wait()

	s.logger.Info("gateway listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept connection", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *TCPServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.logger.With("addr", conn.RemoteAddr().String())

	// Unblock reads when the server shuts down.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return
	}
	req, err := wire.ReadRecord(conn)
	if err != nil {
		log.Warn("gateway read login", "error", err)
		return
	}
	if req.Kind != wire.KindLogin {
		log.Warn("gateway unexpected record", "kind", req.Kind.String())
		return
	}

	session, err := s.svc.Login(ctx, Challenge{UserID: req.UserID, Timestamp: req.Timestamp, Signature: req.Signature})
	if err != nil {
		// The client only ever sees the connection close.
		log.Info("gateway login rejected", "user_id", req.UserID, "error", err)
		return
	}

	ack := wire.Record{Kind: wire.KindAckLogin, UserID: session.UserID, Session: session.ID, Text: loginAccepted}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return
	}
	if err := wire.WriteRecord(conn, ack); err != nil {
		log.Warn("gateway write ack", "user_id", session.UserID, "error", err)
		return
	}
	if s.handler == nil {
		return
	}
	if err := s.handler.ServeSession(ctx, conn, session); err != nil && ctx.Err() == nil {
		log.Warn("gateway session ended", "user_id", session.UserID, "error", err)
	}
}
