package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/lodi-net/lodi/internal/wire"
)

// replyGrace covers transit on top of the service's own push timeout.
const replyGrace = 2 * time.Second

// Client asks a remote approval service to confirm a login.
type Client struct {
	addr    string
	timeout time.Duration
}

// NewClient returns a client that waits at most pushTimeout plus a short
// grace period for the service's verdict.
func NewClient(addr string, pushTimeout time.Duration) *Client {
	if pushTimeout <= 0 {
		pushTimeout = DefaultPushTimeout
	}
	return &Client{addr: addr, timeout: pushTimeout + replyGrace}
}

// RequestApproval reports whether the user's device approved the login.
func (c *Client) RequestApproval(ctx context.Context, userID uint32) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := wire.Exchange(ctx, c.addr, wire.Record{Kind: wire.KindRequestAuth, UserID: userID}, c.timeout)
	if err != nil {
		return false, err
	}
	if reply.UserID != userID {
		return false, fmt.Errorf("%w: result for user %d", wire.ErrUnexpectedReply, reply.UserID)
	}
	switch reply.Kind {
	case wire.KindResponseAuth:
		return true, nil
	case wire.KindResponseAuthFail:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", wire.ErrUnexpectedReply, reply.Kind)
	}
}
