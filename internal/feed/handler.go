package feed

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/lodi-net/lodi/internal/middleware"
)

// Handler exposes feed HTTP endpoints for session holders.
type Handler struct {
	service *Service
}

// NewHandler builds a feed HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type postRequest struct {
	Body string `json:"body"`
}

type feedResponse struct {
	UserID uint32 `json:"user_id"`
	Posts  []Post `json:"posts"`
}

// Feed returns the caller's timeline.
func (h *Handler) Feed(c *fiber.Ctx) error {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	limit := c.QueryInt("limit", DefaultLimit)
	posts, err := h.service.Feed(c.UserContext(), session.UserID, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if posts == nil {
		posts = []Post{}
	}
	return c.Status(http.StatusOK).JSON(feedResponse{UserID: session.UserID, Posts: posts})
}

// Post publishes a new post for the caller.
func (h *Handler) Post(c *fiber.Ctx) error {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	post, err := h.service.Post(c.UserContext(), session.UserID, req.Body)
	if errors.Is(err, ErrEmptyPost) || errors.Is(err, ErrPostTooLong) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(post)
}

// Follow adds the user in the :id path parameter to the caller's feed.
func (h *Handler) Follow(c *fiber.Ctx) error {
	session, target, err := followParams(c)
	if err != nil {
		return err
	}
	if err := h.service.Follow(c.UserContext(), session, target); err != nil {
		if errors.Is(err, ErrSelfFollow) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user_id": session, "following": target})
}

// Unfollow removes the user in the :id path parameter from the caller's feed.
func (h *Handler) Unfollow(c *fiber.Ctx) error {
	session, target, err := followParams(c)
	if err != nil {
		return err
	}
	if err := h.service.Unfollow(c.UserContext(), session, target); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

func followParams(c *fiber.Ctx) (uint32, uint32, error) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		return 0, 0, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	target, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, 0, fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	return session.UserID, uint32(target), nil
}
