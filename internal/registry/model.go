package registry

import "time"

// Record binds a user to the public exponent their signatures verify under.
type Record struct {
	UserID    uint32
	PublicKey uint64
	UpdatedAt time.Time
}
