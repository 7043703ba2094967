package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit writes one line per HTTP request. Lines for session holders carry
// their user and session, and replayed writes are marked. Server errors log
// at error level and client errors at warn.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = http.StatusInternalServerError
		}

		attrs := []slog.Attr{
			slog.String("request_id", RequestIDFrom(c)),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if session, ok := SessionFrom(c); ok {
			attrs = append(attrs,
				slog.Any("user_id", session.UserID),
				slog.String("session_id", session.ID.String()))
		}
		if string(c.Response().Header.Peek(ReplayedHeader)) == "true" {
			attrs = append(attrs, slog.Bool("replayed", true))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.LogAttrs(context.Background(), level, "http request", attrs...)
		return err
	}
}
