package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/lodi-net/lodi/internal/gateway"
	"github.com/lodi-net/lodi/internal/wire"
)

// DefaultIdleTimeout closes a session connection that stays quiet this long.
const DefaultIdleTimeout = 5 * time.Minute

// Sessions checks and ends gateway sessions.
type Sessions interface {
	Session(ctx context.Context, id uuid.UUID) (gateway.Session, bool, error)
	Logout(ctx context.Context, id uuid.UUID) error
}

// ConnHandler serves feed records over a connection the gateway has already
// authenticated.
type ConnHandler struct {
	svc         *Service
	sessions    Sessions
	logger      *slog.Logger
	idleTimeout time.Duration
}

// NewConnHandler builds the post-login handler for the gateway TCP server.
func NewConnHandler(svc *Service, sessions Sessions, logger *slog.Logger, idleTimeout time.Duration) *ConnHandler {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &ConnHandler{svc: svc, sessions: sessions, logger: logger, idleTimeout: idleTimeout}
}

// ServeSession handles requests until the client logs out or disconnects.
func (h *ConnHandler) ServeSession(ctx context.Context, conn net.Conn, session gateway.Session) error {
	log := h.logger.With("user_id", session.UserID, "session_id", session.ID.String())
	log.Info("feed session started")

	for {
		err := conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		var req wire.Record
		if err == nil {
			req, err = wire.ReadRecord(conn)
		}
		if closedByPeer(err) {
			log.Info("feed session closed by client")
			return nil
		}
		if err != nil {
			return err
		}

		if _, live, err := h.sessions.Session(ctx, session.ID); err != nil || !live {
			_ = wire.WriteRecord(conn, errorRecord(session.UserID, "session ended"))
			return err
		}

		done, err := h.dispatch(ctx, conn, session, req)
		if err != nil {
			return err
		}
		if done {
			log.Info("feed session logged out")
			return nil
		}
	}
}

// closedByPeer reports whether err means the client hung up.
func closedByPeer(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

func (h *ConnHandler) dispatch(ctx context.Context, conn net.Conn, session gateway.Session, req wire.Record) (bool, error) {
	userID := session.UserID
	switch req.Kind {
	case wire.KindPost:
		post, err := h.svc.Post(ctx, userID, req.Text)
		if err != nil {
			return false, wire.WriteRecord(conn, errorRecord(userID, err.Error()))
		}
		return false, wire.WriteRecord(conn, wire.Record{Kind: wire.KindAckPost, UserID: userID, Session: post.ID, Timestamp: uint64(post.CreatedAt.Unix())})

	case wire.KindFollow:
		if err := h.svc.Follow(ctx, userID, req.PeerID); err != nil {
			return false, wire.WriteRecord(conn, errorRecord(userID, err.Error()))
		}
		return false, wire.WriteRecord(conn, wire.Record{Kind: wire.KindAckFollow, UserID: userID, PeerID: req.PeerID})

	case wire.KindUnfollow:
		if err := h.svc.Unfollow(ctx, userID, req.PeerID); err != nil {
			return false, wire.WriteRecord(conn, errorRecord(userID, err.Error()))
		}
		return false, wire.WriteRecord(conn, wire.Record{Kind: wire.KindAckUnfollow, UserID: userID, PeerID: req.PeerID})

	case wire.KindRequestFeed:
		posts, err := h.svc.Feed(ctx, userID, DefaultLimit)
		if err != nil {
			return false, wire.WriteRecord(conn, errorRecord(userID, err.Error()))
		}
		for _, p := range posts {
			item := wire.Record{Kind: wire.KindFeedItem, UserID: userID, PeerID: p.Author, Session: p.ID, Timestamp: uint64(p.CreatedAt.Unix()), Text: p.Body}
			if err := wire.WriteRecord(conn, item); err != nil {
				return false, err
			}
		}
		return false, wire.WriteRecord(conn, wire.Record{Kind: wire.KindFeedEnd, UserID: userID, PeerID: uint32(len(posts))})

	case wire.KindLogout:
		if err := h.sessions.Logout(ctx, session.ID); err != nil {
			return false, err
		}
		return true, wire.WriteRecord(conn, wire.Record{Kind: wire.KindAckLogout, UserID: userID, Session: session.ID})

	default:
		return false, wire.WriteRecord(conn, errorRecord(userID, "unsupported "+req.Kind.String()))
	}
}

func errorRecord(userID uint32, msg string) wire.Record {
	return wire.Record{Kind: wire.KindError, UserID: userID, Text: wire.Truncate(msg)}
}
