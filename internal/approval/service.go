package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lodi-net/lodi/internal/notification"
	"github.com/lodi-net/lodi/internal/signature"
	"github.com/lodi-net/lodi/internal/wire"
)

const (
	// DefaultPushTimeout is how long a device has to answer a push prompt.
	DefaultPushTimeout = 15 * time.Second
	// DefaultLookupTimeout bounds the registry call made during registration.
	DefaultLookupTimeout = 3 * time.Second
	// DefaultFreshnessWindow is the allowed skew of a re-registration timestamp.
	DefaultFreshnessWindow = 30 * time.Second
)

var (
	ErrUnknownUser       = errors.New("user has no registered public key")
	ErrBadSignature      = errors.New("registration signature does not verify")
	ErrStaleRegistration = errors.New("re-registration timestamp is stale or already used")
	ErrNotRegistered     = errors.New("no device registered for user")
	ErrApprovalPending   = errors.New("approval already pending for user")
	ErrApprovalTimeout   = errors.New("device did not answer in time")
	ErrApprovalDenied    = errors.New("device denied the login")
	ErrInvalidReply      = errors.New("invalid device reply")
)

// KeyLookup resolves a user's public key.
type KeyLookup interface {
	Lookup(ctx context.Context, userID uint32) (publicKey uint64, found bool, err error)
}

// Config tunes the approval service.
type Config struct {
	PushTimeout     time.Duration
	LookupTimeout   time.Duration
	FreshnessWindow time.Duration
	Policy          ReRegisterPolicy
}

// exchange is one outstanding push prompt.
type exchange struct {
	userID  uint32
	addr    string
	replies chan wire.Record
}

// Service registers devices and mediates push approvals.
type Service struct {
	devices  DeviceStore
	keys     KeyLookup
	scheme   signature.Scheme
	notifier notification.Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	mu      sync.Mutex
	pending map[uint32]*exchange
}

// NewService wires the approval service.
func NewService(devices DeviceStore, keys KeyLookup, scheme signature.Scheme, notifier notification.Notifier, logger *slog.Logger, cfg Config) *Service {
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyIgnore
	}
	return &Service{
		devices:  devices,
		keys:     keys,
		scheme:   scheme,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		pending:  make(map[uint32]*exchange),
	}
}

// Register binds userID to addr once the signature over timestamp verifies
// against the registry. A nil error means the device should be confirmed.
//
// Moving an existing registration to a new address additionally requires a
// timestamp inside the freshness window and newer than the one the current
// registration was made with.
func (s *Service) Register(ctx context.Context, userID uint32, timestamp, sig uint64, addr string) error {
	existing, found, err := s.devices.Get(ctx, userID)
	if err != nil {
		s.logger.Error("approval.register device lookup failed", "user_id", userID, "error", err)
		return err
	}
	if found && (s.cfg.Policy == PolicyIgnore || existing.Addr == addr) {
		s.logger.Info("approval.register already registered", "user_id", userID, "addr", existing.Addr)
		return nil
	}
	if found && (!s.fresh(timestamp) || timestamp <= existing.Timestamp) {
		s.logger.Warn("approval.register stale re-registration", "user_id", userID, "addr", addr, "timestamp", timestamp)
		return ErrStaleRegistration
	}

	if err := s.verify(ctx, userID, timestamp, sig); err != nil {
		s.logger.Warn("approval.register rejected", "user_id", userID, "addr", addr, "error", err)
		return err
	}

	device := Device{UserID: userID, Addr: addr, Timestamp: timestamp, RegisteredAt: s.now().UTC()}
	if err := s.devices.Put(ctx, device); err != nil {
		s.logger.Warn("approval.register not stored", "user_id", userID, "error", err)
		return err
	}
	if found {
		s.logger.Info("approval.register moved device", "user_id", userID, "from", existing.Addr, "to", addr)
	} else {
		s.logger.Info("approval.register stored", "user_id", userID, "addr", addr)
	}
	return nil
}

// fresh reports whether |now - ts| is within the window, inclusive.
func (s *Service) fresh(ts uint64) bool {
	now := uint64(s.now().Unix())
	skew := now - ts
	if ts > now {
		skew = ts - now
	}
	return skew <= uint64(s.cfg.FreshnessWindow/time.Second)
}

func (s *Service) verify(ctx context.Context, userID uint32, timestamp, sig uint64) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	publicKey, found, err := s.keys.Lookup(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup public key: %w", err)
	}
	if !found {
		return ErrUnknownUser
	}
	if !s.scheme.Verify(sig, publicKey, timestamp) {
		return ErrBadSignature
	}
	return nil
}

// RequestApproval pushes a prompt to the user's device and blocks until the
// device answers, the push timeout elapses or ctx is done. A nil error means
// the login was approved.
func (s *Service) RequestApproval(ctx context.Context, userID uint32) error {
	device, found, err := s.devices.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		s.logger.Info("approval.request no device", "user_id", userID)
		return ErrNotRegistered
	}

	ex, err := s.begin(device)
	if err != nil {
		s.logger.Warn("approval.request refused", "user_id", userID, "error", err)
		return err
	}
	defer s.end(ex)

	if err := s.notifier.Send(ctx, notification.Message{Kind: notification.KindPushApproval, Destination: device.Addr, UserID: userID}); err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	s.logger.Info("approval.request pushed", "user_id", userID, "addr", device.Addr)

	timer := time.NewTimer(s.cfg.PushTimeout)
	defer timer.Stop()

	select {
	case reply := <-ex.replies:
		return s.judge(userID, reply)
	case <-timer.C:
		s.logger.Info("approval.request timed out", "user_id", userID)
		return ErrApprovalTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) judge(userID uint32, reply wire.Record) error {
	if reply.UserID != userID {
		s.logger.Warn("approval.reply wrong user", "user_id", userID, "reply_user_id", reply.UserID)
		return fmt.Errorf("%w: for user %d", ErrInvalidReply, reply.UserID)
	}
	switch reply.Kind {
	case wire.KindAckPushTFA:
		s.logger.Info("approval.reply approved", "user_id", userID)
		return nil
	case wire.KindDenyPushTFA:
		s.logger.Info("approval.reply denied", "user_id", userID)
		return ErrApprovalDenied
	default:
		s.logger.Warn("approval.reply unexpected kind", "user_id", userID, "kind", reply.Kind.String())
		return fmt.Errorf("%w: %s", ErrInvalidReply, reply.Kind)
	}
}

func (s *Service) begin(device Device) (*exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.pending[device.UserID]; busy {
		return nil, ErrApprovalPending
	}
	ex := &exchange{userID: device.UserID, addr: device.Addr, replies: make(chan wire.Record, 1)}
	s.pending[device.UserID] = ex
	return ex, nil
}

func (s *Service) end(ex *exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[ex.userID] == ex {
		delete(s.pending, ex.userID)
	}
}

// Deliver routes a device reply received from addr to the exchange waiting on
// that device. It reports false when no exchange is waiting there.
func (s *Service) Deliver(reply wire.Record, from string) bool {
	s.mu.Lock()
	var target *exchange
	for _, ex := range s.pending {
		if ex.addr != from {
			continue
		}
		if target == nil || ex.userID == reply.UserID {
			target = ex
		}
	}
	s.mu.Unlock()

	if target == nil {
		return false
	}
	select {
	case target.replies <- reply:
		return true
	default:
		// The exchange already holds its one reply.
		return false
	}
}

// Pending reports whether an approval is outstanding for userID.
func (s *Service) Pending(userID uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[userID]
	return ok
}
