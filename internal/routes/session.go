package routes

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/lodi-net/lodi/internal/gateway"
	"github.com/lodi-net/lodi/internal/middleware"
)

// Sessions is the slice of the gateway the HTTP surface needs.
type Sessions interface {
	middleware.SessionLookup
	Logout(ctx context.Context, id uuid.UUID) error
}

// RegisterSessionRoutes wires session endpoints. Sessions are only ever
// created by the gateway's TCP login, so there is no login route.
func RegisterSessionRoutes(r fiber.Router, sessions Sessions) {
	r.Post("/logout", func(c *fiber.Ctx) error {
		session, ok := middleware.SessionFrom(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		if err := sessions.Logout(c.UserContext(), session.ID); err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(http.StatusNoContent)
	})
}

var _ Sessions = (*gateway.Service)(nil)
