package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lodi-net/lodi/internal/signature"
)

const (
	// DefaultFreshnessWindow is the allowed skew between a signed timestamp
	// and the gateway clock, in either direction.
	DefaultFreshnessWindow = 30 * time.Second
	// DefaultLookupTimeout bounds the registry leg of a login.
	DefaultLookupTimeout = 3 * time.Second
	// DefaultSessionTTL is how long a granted session stays valid.
	DefaultSessionTTL = 12 * time.Hour
)

var (
	ErrRateLimited        = errors.New("too many login attempts")
	ErrStaleTimestamp     = errors.New("timestamp outside freshness window")
	ErrUnknownUser        = errors.New("no public key registered for user")
	ErrBadSignature       = errors.New("signature does not verify")
	ErrReplay             = errors.New("challenge already used")
	ErrSecondFactorDenied = errors.New("second factor not approved")
	ErrUpstream           = errors.New("upstream service unavailable")
)

// KeyLookup resolves a user's public key from the identity registry.
type KeyLookup interface {
	Lookup(ctx context.Context, userID uint32) (publicKey uint64, found bool, err error)
}

// Approver obtains the out-of-band second factor.
type Approver interface {
	RequestApproval(ctx context.Context, userID uint32) (approved bool, err error)
}

// Config tunes the login sequence.
type Config struct {
	FreshnessWindow time.Duration
	LookupTimeout   time.Duration
	SessionTTL      time.Duration
}

// Deps are the collaborators a gateway needs. Limiter may be nil.
type Deps struct {
	Keys     KeyLookup
	Approver Approver
	Scheme   signature.Scheme
	Replay   ReplayGuard
	Limiter  Limiter
	Sessions SessionStore
	Logger   *slog.Logger
}

// Service runs the login handshake.
type Service struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// NewService builds a gateway service.
func NewService(cfg Config, deps Deps) *Service {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Service{deps: deps, cfg: cfg, now: time.Now}
}

// Login verifies the challenge step by step and grants a session only after
// the second factor approves. No session is stored for a failed attempt.
func (s *Service) Login(ctx context.Context, ch Challenge) (Session, error) {
	log := s.deps.Logger.With("user_id", ch.UserID)

	if !s.fresh(ch.Timestamp) {
		return Session{}, ErrStaleTimestamp
	}

	publicKey, err := s.lookup(ctx, ch.UserID)
	if err != nil {
		return Session{}, err
	}

	if !s.deps.Scheme.Verify(ch.Signature, publicKey, ch.Timestamp) {
		return Session{}, ErrBadSignature
	}

	fresh, err := s.deps.Replay.FirstUse(ctx, ch, 2*s.cfg.FreshnessWindow)
	if err != nil {
		return Session{}, fmt.Errorf("%w: replay guard: %v", ErrUpstream, err)
	}
	if !fresh {
		return Session{}, ErrReplay
	}

	// Charged only for verified, first-use challenges.
	if s.deps.Limiter != nil {
		ok, err := s.deps.Limiter.Allow(ctx, ch.UserID)
		if err != nil {
			// Fail open on limiter errors.
			log.Warn("gateway.login limiter error", "error", err)
		} else if !ok {
			return Session{}, ErrRateLimited
		}
	}

	log.Info("gateway.login signature verified, requesting second factor")
	approved, err := s.deps.Approver.RequestApproval(ctx, ch.UserID)
	if err != nil {
		return Session{}, fmt.Errorf("%w: approval: %v", ErrUpstream, err)
	}
	if !approved {
		return Session{}, ErrSecondFactorDenied
	}

	now := s.now().UTC()
	session := Session{ID: uuid.New(), UserID: ch.UserID, CreatedAt: now, ExpiresAt: now.Add(s.cfg.SessionTTL)}
	if err := s.deps.Sessions.Create(ctx, session); err != nil {
		return Session{}, fmt.Errorf("%w: session store: %v", ErrUpstream, err)
	}
	log.Info("gateway.login session granted", "session_id", session.ID.String())
	return session, nil
}

// fresh reports whether |now - ts| is within the window, inclusive.
func (s *Service) fresh(ts uint64) bool {
	now := uint64(s.now().Unix())
	var skew uint64
	if now >= ts {
		skew = now - ts
	} else {
		skew = ts - now
	}
	return skew <= uint64(s.cfg.FreshnessWindow/time.Second)
}

func (s *Service) lookup(ctx context.Context, userID uint32) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	key, found, err := s.deps.Keys.Lookup(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: registry: %v", ErrUpstream, err)
	}
	if !found {
		return 0, ErrUnknownUser
	}
	return key, nil
}

// Session returns the live session with id.
func (s *Service) Session(ctx context.Context, id uuid.UUID) (Session, bool, error) {
	session, found, err := s.deps.Sessions.Get(ctx, id)
	if err != nil || !found {
		return Session{}, false, err
	}
	if session.Expired(s.now()) {
		return Session{}, false, nil
	}
	return session, true, nil
}

// Logout ends a session.
func (s *Service) Logout(ctx context.Context, id uuid.UUID) error {
	return s.deps.Sessions.Delete(ctx, id)
}
