package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lodi-net/lodi/internal/feed"
)

// RegisterFeedRoutes wires feed endpoints. write guards the routes that
// change the feed.
func RegisterFeedRoutes(r fiber.Router, h *feed.Handler, write fiber.Handler) {
	r.Get("/feed", h.Feed)
	r.Post("/posts", write, h.Post)
	r.Post("/follow/:id", write, h.Follow)
	r.Delete("/follow/:id", write, h.Unfollow)
}
