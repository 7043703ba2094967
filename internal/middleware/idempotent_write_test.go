package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodi-net/lodi/internal/gateway"
	"github.com/lodi-net/lodi/internal/logging"
)

func writeApp(t *testing.T, withSession bool) (*fiber.App, *miniredis.Miniredis, *int) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	live := gateway.Session{ID: uuid.New(), UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}
	app := fiber.New()
	if withSession {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals(sessionLocal, live)
			return c.Next()
		})
	}
	calls := 0
	app.Post("/posts", IdempotentWrite(cache, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"n": calls})
	})
	return app, mr, &calls
}

func postWithKey(t *testing.T, app *fiber.App, key string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/posts", strings.NewReader("{}"))
	req.Header.Set(IdempotencyKeyHeader, key)
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestIdempotentWriteRejectsLongKey(t *testing.T) {
	app, _, calls := writeApp(t, true)
	assert.Equal(t, fiber.StatusBadRequest, postWithKey(t, app, strings.Repeat("k", maxWriteKeyLen+1)))
	assert.Zero(t, *calls)
}

func TestIdempotentWriteNeedsSession(t *testing.T) {
	app, _, calls := writeApp(t, false)
	assert.Equal(t, fiber.StatusUnauthorized, postWithKey(t, app, "k"))
	assert.Zero(t, *calls)
}

func TestIdempotentWriteInFlightConflicts(t *testing.T) {
	app, mr, calls := writeApp(t, true)
	require.NoError(t, mr.Set(writeKeyPrefix+"7:k", `{"route":"POST /posts"}`))

	assert.Equal(t, fiber.StatusConflict, postWithKey(t, app, "k"))
	assert.Zero(t, *calls)
}

func TestIdempotentWriteStoreDown(t *testing.T) {
	app, mr, calls := writeApp(t, true)
	mr.Close()

	assert.Equal(t, fiber.StatusServiceUnavailable, postWithKey(t, app, "k"))
	assert.Zero(t, *calls)
}
