package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/lodi-net/lodi/internal/signature"
	"github.com/lodi-net/lodi/internal/wire"
)

// DefaultReadTimeout bounds each wait for a gateway reply. A login waits for
// the second factor, so it gets LoginTimeout instead.
const (
	DefaultReadTimeout = 5 * time.Second
	LoginTimeout       = 25 * time.Second
)

var (
	// ErrLoginRejected means the gateway closed the connection instead of
	// acknowledging. The gateway never says which check failed.
	ErrLoginRejected = errors.New("login rejected")
	// ErrRemote wraps an error record sent by the gateway.
	ErrRemote = errors.New("gateway error")
)

// KeyRegistrar publishes a public key to the identity registry.
type KeyRegistrar interface {
	Register(ctx context.Context, userID uint32, publicKey uint64) error
}

// Client drives the end-user side: key registration and login.
type Client struct {
	userID      uint32
	keys        signature.KeyPair
	signer      *signature.Signer
	registry    KeyRegistrar
	gatewayAddr string
	now         func() time.Time
}

// NewClient builds a client for userID.
func NewClient(userID uint32, keys signature.KeyPair, scheme signature.Scheme, registry KeyRegistrar, gatewayAddr string) *Client {
	return &Client{
		userID:      userID,
		keys:        keys,
		signer:      signature.NewSigner(scheme, keys),
		registry:    registry,
		gatewayAddr: gatewayAddr,
		now:         time.Now,
	}
}

// RegisterKey publishes the client's public key.
func (c *Client) RegisterKey(ctx context.Context) error {
	return c.registry.Register(ctx, c.userID, c.keys.Public)
}

// Login signs the current time and runs the gateway handshake. On success
// the returned session owns the connection.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.gatewayAddr)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	ts := uint64(c.now().Unix())
	req := wire.Record{Kind: wire.KindLogin, UserID: c.userID, Timestamp: ts, Signature: c.signer.Sign(ts)}
	reply, err := roundTrip(ctx, conn, req, LoginTimeout)
	if err != nil {
		conn.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrLoginRejected
		}
		return nil, err
	}
	if reply.Kind != wire.KindAckLogin || reply.UserID != c.userID {
		conn.Close()
		return nil, fmt.Errorf("%w: %s for user %d", wire.ErrUnexpectedReply, reply.Kind, reply.UserID)
	}
	return &Session{ID: reply.Session, UserID: c.userID, Status: reply.Text, conn: conn}, nil
}

// Session is an accepted login and its open connection.
type Session struct {
	ID     uuid.UUID
	UserID uint32
	Status string
	conn   net.Conn
}

// FeedItem is one post returned by Feed.
type FeedItem struct {
	ID     uuid.UUID
	Author uint32
	Body   string
	At     time.Time
}

// Post publishes body and returns the new post's id.
func (s *Session) Post(ctx context.Context, body string) (uuid.UUID, error) {
	reply, err := s.call(ctx, wire.Record{Kind: wire.KindPost, UserID: s.UserID, Text: body}, wire.KindAckPost)
	if err != nil {
		return uuid.Nil, err
	}
	return reply.Session, nil
}

// Follow adds peer to the session user's feed.
func (s *Session) Follow(ctx context.Context, peer uint32) error {
	_, err := s.call(ctx, wire.Record{Kind: wire.KindFollow, UserID: s.UserID, PeerID: peer}, wire.KindAckFollow)
	return err
}

// Unfollow removes peer from the session user's feed.
func (s *Session) Unfollow(ctx context.Context, peer uint32) error {
	_, err := s.call(ctx, wire.Record{Kind: wire.KindUnfollow, UserID: s.UserID, PeerID: peer}, wire.KindAckUnfollow)
	return err
}

// Feed fetches the session user's timeline, newest first.
func (s *Session) Feed(ctx context.Context) ([]FeedItem, error) {
	if err := setDeadline(ctx, s.conn, DefaultReadTimeout); err != nil {
		return nil, err
	}
	if err := wire.WriteRecord(s.conn, wire.Record{Kind: wire.KindRequestFeed, UserID: s.UserID}); err != nil {
		return nil, err
	}
	var items []FeedItem
	for {
		r, err := wire.ReadRecord(s.conn)
		if err != nil {
			return nil, err
		}
		switch r.Kind {
		case wire.KindFeedItem:
			items = append(items, FeedItem{ID: r.Session, Author: r.PeerID, Body: r.Text, At: time.Unix(int64(r.Timestamp), 0).UTC()})
		case wire.KindFeedEnd:
			return items, nil
		case wire.KindError:
			return nil, fmt.Errorf("%w: %s", ErrRemote, r.Text)
		default:
			return nil, fmt.Errorf("%w: %s", wire.ErrUnexpectedReply, r.Kind)
		}
	}
}

// Logout ends the session on the gateway and closes the connection.
func (s *Session) Logout(ctx context.Context) error {
	defer s.conn.Close()
	_, err := s.call(ctx, wire.Record{Kind: wire.KindLogout, UserID: s.UserID}, wire.KindAckLogout)
	return err
}

// Close drops the connection without logging out.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) call(ctx context.Context, req wire.Record, want wire.Kind) (wire.Record, error) {
	reply, err := roundTrip(ctx, s.conn, req, DefaultReadTimeout)
	if err != nil {
		return wire.Record{}, err
	}
	switch reply.Kind {
	case want:
		return reply, nil
	case wire.KindError:
		return wire.Record{}, fmt.Errorf("%w: %s", ErrRemote, reply.Text)
	default:
		return wire.Record{}, fmt.Errorf("%w: %s", wire.ErrUnexpectedReply, reply.Kind)
	}
}

func roundTrip(ctx context.Context, conn net.Conn, req wire.Record, fallback time.Duration) (wire.Record, error) {
	if err := setDeadline(ctx, conn, fallback); err != nil {
		return wire.Record{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := wire.WriteRecord(conn, req); err != nil {
		return wire.Record{}, err
	}
	reply, err := wire.ReadRecord(conn)
	if err != nil && ctx.Err() != nil {
		return wire.Record{}, ctx.Err()
	}
	return reply, err
}

func setDeadline(ctx context.Context, conn net.Conn, fallback time.Duration) error {
	deadline := time.Now().Add(fallback)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	return conn.SetDeadline(deadline)
}
