package gateway

import (
	"time"

	"github.com/google/uuid"
)

// Challenge is one login attempt: a timestamp signed with the user's private key.
type Challenge struct {
	UserID    uint32
	Timestamp uint64
	Signature uint64
}

// Session is granted once every login step has passed.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uint32    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at t.
func (s Session) Expired(t time.Time) bool {
	return !s.ExpiresAt.IsZero() && !t.Before(s.ExpiresAt)
}
