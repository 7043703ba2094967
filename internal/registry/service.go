package registry

import (
	"context"
	"log/slog"
	"time"
)

// Service manages identity records.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new registry service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Register upserts the public key for userID. A full store rejects unseen
// users but still accepts updates for known ones.
func (s *Service) Register(ctx context.Context, userID uint32, publicKey uint64) error {
	_, existed, err := s.store.Get(ctx, userID)
	if err != nil {
		s.logger.Error("registry.register lookup failed", "user_id", userID, "error", err)
		return err
	}
	rec := Record{UserID: userID, PublicKey: publicKey, UpdatedAt: s.now().UTC()}
	if err := s.store.Put(ctx, rec); err != nil {
		s.logger.Warn("registry.register rejected", "user_id", userID, "error", err)
		return err
	}
	if existed {
		s.logger.Info("registry.register updated", "user_id", userID, "public_key", publicKey)
	} else {
		s.logger.Info("registry.register stored", "user_id", userID, "public_key", publicKey)
	}
	return nil
}

// Lookup returns the public key for userID and whether the user is known.
func (s *Service) Lookup(ctx context.Context, userID uint32) (uint64, bool, error) {
	rec, found, err := s.store.Get(ctx, userID)
	if err != nil {
		s.logger.Error("registry.lookup failed", "user_id", userID, "error", err)
		return 0, false, err
	}
	if !found {
		s.logger.Info("registry.lookup miss", "user_id", userID)
		return 0, false, nil
	}
	return rec.PublicKey, true, nil
}
