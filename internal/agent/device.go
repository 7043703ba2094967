package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/lodi-net/lodi/internal/signature"
	"github.com/lodi-net/lodi/internal/wire"
)

// DefaultRegisterTimeout bounds the wait for the approval service's confirmation.
const DefaultRegisterTimeout = 5 * time.Second

// ErrNotConfirmed means the approval service never confirmed the device.
var ErrNotConfirmed = errors.New("device registration not confirmed")

// Decision answers one push prompt. True approves the login.
type Decision func(ctx context.Context, userID uint32) bool

// AlwaysApprove approves every prompt.
func AlwaysApprove(context.Context, uint32) bool { return true }

// AlwaysDeny denies every prompt.
func AlwaysDeny(context.Context, uint32) bool { return false }

// Prompt asks on out and reads a y/n answer from in. Anything but y or yes denies.
func Prompt(in io.Reader, out io.Writer) Decision {
	lines := bufio.NewScanner(in)
	ask := color.New(color.FgYellow, color.Bold)
	return func(_ context.Context, userID uint32) bool {
		ask.Fprintf(out, "Approve login for user %d? [y/N] ", userID)
		if !lines.Scan() {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(lines.Text())) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// Device is the second-factor agent: it registers its address with the
// approval service, then answers push prompts for one user.
type Device struct {
	userID  uint32
	signer  *signature.Signer
	addr    string
	decide  Decision
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	server  *net.UDPAddr
}

// NewDevice builds an agent for userID talking to the approval service at addr.
func NewDevice(userID uint32, signer *signature.Signer, addr string, decide Decision, logger *slog.Logger) *Device {
	return &Device{
		userID:  userID,
		signer:  signer,
		addr:    addr,
		decide:  decide,
		logger:  logger.With("user_id", userID),
		timeout: DefaultRegisterTimeout,
		now:     time.Now,
	}
}

// Run registers and then answers prompts until ctx is done.
func (d *Device) Run(ctx context.Context, conn net.PacketConn) error {
	if err := d.Register(ctx, conn); err != nil {
		return err
	}
	return d.Listen(ctx, conn)
}

// Register proves the device's key to the approval service from conn's
// address, which is where pushes will arrive.
func (d *Device) Register(ctx context.Context, conn net.PacketConn) error {
	server, err := net.ResolveUDPAddr("udp", d.addr)
	if err != nil {
		return fmt.Errorf("resolve approval service: %w", err)
	}
	d.server = server

	ts := uint64(d.now().Unix())
	req := wire.Record{Kind: wire.KindRegisterTFA, UserID: d.userID, Timestamp: ts, Signature: d.signer.Sign(ts)}
	if err := wire.SendTo(conn, server, req); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}

	deadline := d.now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	buf := make([]byte, 2*wire.RecordSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotConfirmed, err)
		}
		if from.String() != server.String() {
			continue
		}
		reply, err := wire.Decode(buf[:n])
		if err != nil || reply.Kind != wire.KindConfirmTFA || reply.UserID != d.userID {
			continue
		}
		d.logger.Info("device registered", "approval_addr", server.String())
		return wire.SendTo(conn, server, wire.Record{Kind: wire.KindAckRegTFA, UserID: d.userID})
	}
}

// Listen answers push prompts arriving on conn until ctx is done.
func (d *Device) Listen(ctx context.Context, conn net.PacketConn) error {
	if d.server == nil {
		return errors.New("device not registered")
	}
	return wire.ServePackets(ctx, conn, d.logger, func(ctx context.Context, r wire.Record, from net.Addr) {
		if from.String() != d.server.String() {
			d.logger.Warn("device ignoring stranger", "addr", from.String())
			return
		}
		if r.Kind != wire.KindPushTFA || r.UserID != d.userID {
			d.logger.Debug("device ignoring record", "kind", r.Kind.String())
			return
		}

		reply := wire.Record{Kind: wire.KindDenyPushTFA, UserID: d.userID}
		if d.decide(ctx, r.UserID) {
			reply.Kind = wire.KindAckPushTFA
		}
		d.logger.Info("device answered push", "reply", reply.Kind.String())
		if err := wire.SendTo(conn, d.server, reply); err != nil {
			d.logger.Warn("device send reply", "error", err)
		}
	})
}
