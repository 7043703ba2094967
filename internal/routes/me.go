package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/lodi-net/lodi/internal/feed"
	"github.com/lodi-net/lodi/internal/middleware"
)

// RegisterMeRoute exposes a GET endpoint describing the caller's session and
// who they follow.
func RegisterMeRoute(r fiber.Router, feeds *feed.Service) {
	r.Get("/me", func(c *fiber.Ctx) error {
		session, ok := middleware.SessionFrom(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		following, err := feeds.Following(c.UserContext(), session.UserID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		if following == nil {
			following = []uint32{}
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user_id": session.UserID,
			"session": fiber.Map{
				"id":         session.ID,
				"created_at": session.CreatedAt,
				"expires_at": session.ExpiresAt,
			},
			"following": following,
		})
	})
}
