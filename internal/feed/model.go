package feed

import (
	"time"

	"github.com/google/uuid"
)

// MaxBodyLength matches the text field of a wire record.
const MaxBodyLength = 64

// Post is a short message authored by a logged-in user.
type Post struct {
	ID        uuid.UUID `json:"id"`
	Author    uint32    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
