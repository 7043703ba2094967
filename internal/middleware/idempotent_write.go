package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader carries the client-chosen key of a retryable write.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from a recorded write.
	ReplayedHeader = "Idempotent-Replayed"

	writeKeyPrefix   = "feed:write:v1:"
	maxWriteKeyLen   = 64
	writeStoreWindow = 2 * time.Second
)

// recordedWrite is what a write left behind under its key. Status zero means
// the first request is still running.
type recordedWrite struct {
	Route       string `json:"route"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// IdempotentWrite lets a session holder retry a feed write with the same
// Idempotency-Key and get the first outcome back instead of a second post or
// follow. Keys are scoped to the session's user and bound to the route they
// were first used on. Requests without the header run normally. It must run
// after SessionAuth.
func IdempotentWrite(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(IdempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}
		if len(key) > maxWriteKeyLen {
			return fiber.NewError(http.StatusBadRequest, "Idempotency-Key too long")
		}
		session, ok := SessionFrom(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}

		route := c.Method() + " " + c.Path()
		slot := fmt.Sprintf("%s%d:%s", writeKeyPrefix, session.UserID, key)
		log := logger.With("user_id", session.UserID, "route", route)

		ctx, cancel := context.WithTimeout(c.UserContext(), writeStoreWindow)
		defer cancel()

		pending, _ := json.Marshal(recordedWrite{Route: route})
		reserved, err := cache.SetNX(ctx, slot, pending, ttl).Result()
		if err != nil {
			log.Error("idempotent write reservation failed", "error", err)
			return fiber.NewError(http.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !reserved {
			return replayWrite(ctx, c, cache, slot, route, log)
		}

		if err := c.Next(); err != nil {
			// A failed write may be retried under the same key.
			release(cache, slot, log)
			return err
		}
		status := c.Response().StatusCode()
		if status >= http.StatusInternalServerError {
			release(cache, slot, log)
			return nil
		}

		done, err := json.Marshal(recordedWrite{
			Route:       route,
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        c.Response().Body(),
		})
		if err == nil {
			err = cache.Set(ctx, slot, done, ttl).Err()
		}
		if err != nil {
			log.Error("idempotent write not recorded", "error", err)
			release(cache, slot, log)
		}
		return nil
	}
}

func replayWrite(ctx context.Context, c *fiber.Ctx, cache *redis.Client, slot, route string, log *slog.Logger) error {
	raw, err := cache.Get(ctx, slot).Bytes()
	if errors.Is(err, redis.Nil) {
		// Released between SETNX and GET: the first attempt failed.
		return fiber.NewError(http.StatusConflict, "previous attempt failed, retry")
	}
	if err != nil {
		log.Error("idempotent write lookup failed", "error", err)
		return fiber.NewError(http.StatusServiceUnavailable, "idempotency store unavailable")
	}

	var rec recordedWrite
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Warn("idempotent write record unreadable", "error", err)
		return fiber.NewError(http.StatusConflict, "duplicate request")
	}
	switch {
	case rec.Route != route:
		return fiber.NewError(http.StatusUnprocessableEntity, "Idempotency-Key already used for "+rec.Route)
	case rec.Status == 0:
		return fiber.NewError(http.StatusConflict, "duplicate request currently processing")
	}

	log.Info("idempotent write replayed")
	c.Set(ReplayedHeader, "true")
	if rec.ContentType != "" {
		c.Set(fiber.HeaderContentType, rec.ContentType)
	}
	return c.Status(rec.Status).Send(rec.Body)
}

func release(cache *redis.Client, slot string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), writeStoreWindow)
	defer cancel()
	if err := cache.Del(ctx, slot).Err(); err != nil {
		log.Warn("idempotent write release failed", "error", err)
	}
}
