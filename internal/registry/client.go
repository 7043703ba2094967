package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/lodi-net/lodi/internal/wire"
)

// DefaultTimeout bounds a registry round trip when the caller sets no deadline.
const DefaultTimeout = 3 * time.Second

// Client talks to a remote registry.
type Client struct {
	addr    string
	timeout time.Duration
}

// NewClient returns a client for the registry at addr.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{addr: addr, timeout: timeout}
}

// Register stores publicKey for userID and waits for the acknowledgment.
func (c *Client) Register(ctx context.Context, userID uint32, publicKey uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := wire.Exchange(ctx, c.addr, wire.Record{Kind: wire.KindRegisterKey, UserID: userID, PublicKey: publicKey}, c.timeout)
	if err != nil {
		return err
	}
	if reply.Kind != wire.KindAckRegisterKey || reply.UserID != userID {
		return fmt.Errorf("%w: %s for user %d", wire.ErrUnexpectedReply, reply.Kind, reply.UserID)
	}
	return nil
}

// Lookup fetches the public key for userID. found is false when the registry
// has no record.
func (c *Client) Lookup(ctx context.Context, userID uint32) (uint64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := wire.Exchange(ctx, c.addr, wire.Record{Kind: wire.KindRequestKey, UserID: userID}, c.timeout)
	if err != nil {
		return 0, false, err
	}
	if reply.Kind != wire.KindResponsePublicKey || reply.UserID != userID {
		return 0, false, fmt.Errorf("%w: %s for user %d", wire.ErrUnexpectedReply, reply.Kind, reply.UserID)
	}
	return reply.PublicKey, reply.Found(), nil
}
