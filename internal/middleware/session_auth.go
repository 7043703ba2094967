package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/lodi-net/lodi/internal/gateway"
)

const sessionLocal = "session"

// SessionLookup resolves a live gateway session.
type SessionLookup interface {
	Session(ctx context.Context, id uuid.UUID) (gateway.Session, bool, error)
}

// SessionAuth accepts requests whose bearer token is the id of a live session
// granted by the gateway.
func SessionAuth(sessions SessionLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		id, err := uuid.Parse(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid session")
		}

		session, found, err := sessions.Session(c.UserContext(), id)
		if err != nil {
			return fiber.NewError(http.StatusServiceUnavailable, "session store unavailable")
		}
		if !found {
			return fiber.NewError(http.StatusUnauthorized, "session expired")
		}

		c.Locals(sessionLocal, session)
		c.Locals("user_id", session.UserID)
		return c.Next()
	}
}

// SessionFrom returns the session SessionAuth attached to the request.
func SessionFrom(c *fiber.Ctx) (gateway.Session, bool) {
	session, ok := c.Locals(sessionLocal).(gateway.Session)
	return session, ok
}
