package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lodi-net/lodi/internal/config"
	"github.com/lodi-net/lodi/internal/feed"
	"github.com/lodi-net/lodi/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// are optional.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Sessions Sessions
	Feed     *feed.Service
}

// Setup configures middlewares and the session-holder HTTP surface.
func Setup(app *fiber.App, d Deps) error {
	if d.Sessions == nil || d.Feed == nil {
		return fmt.Errorf("routes: sessions and feed are required")
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("", middleware.SessionAuth(d.Sessions))
	writes := func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		writes = middleware.IdempotentWrite(d.Cache, d.Cfg.IdempotencyTTL.Duration, d.Logger)
	}
	RegisterSessionRoutes(protected, d.Sessions)
	RegisterMeRoute(protected, d.Feed)
	RegisterFeedRoutes(protected, feed.NewHandler(d.Feed), writes)

	return nil
}
