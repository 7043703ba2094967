package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/lodi-net/lodi/internal/approval"
	"github.com/lodi-net/lodi/internal/config"
	"github.com/lodi-net/lodi/internal/feed"
	"github.com/lodi-net/lodi/internal/gateway"
	"github.com/lodi-net/lodi/internal/infra"
	"github.com/lodi-net/lodi/internal/logging"
	"github.com/lodi-net/lodi/internal/registry"
	"github.com/lodi-net/lodi/internal/server"
	"github.com/lodi-net/lodi/internal/signature"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	deps := gateway.Deps{
		Keys:     registry.NewClient(cfg.RegistryAddr, cfg.UpstreamTimeout.Duration),
		Approver: approval.NewClient(cfg.ApprovalAddr, cfg.PushTimeout.Duration),
		Scheme:   signature.NewToyRSA(cfg.Modulus),
		Logger:   logger,
	}
	if cache != nil {
		deps.Replay = gateway.NewRedisReplayGuard(cache)
		deps.Sessions = gateway.NewRedisSessionStore(cache)
		deps.Limiter = gateway.NewRedisLimiter(cache, cfg.LoginAttemptsPerMinute)
	} else {
		deps.Replay = gateway.NewMemoryReplayGuard(gateway.DefaultReplayCapacity)
		deps.Sessions = gateway.NewMemorySessionStore()
		deps.Limiter = gateway.NewMemoryLimiter(cfg.LoginAttemptsPerMinute)
	}
	gw := gateway.NewService(gateway.Config{
		FreshnessWindow: cfg.FreshnessWindow.Duration,
		LookupTimeout:   cfg.UpstreamTimeout.Duration,
		SessionTTL:      cfg.SessionTTL.Duration,
	}, deps)

	var feedRepo feed.Repository
	if db != nil {
		pg, err := feed.NewPostgresRepository(ctx, db)
		if err != nil {
			logger.Error("prepare feed tables", "error", err)
			os.Exit(1)
		}
		feedRepo = pg
	} else {
		feedRepo = feed.NewMemoryRepository()
	}
	feeds := feed.NewService(feedRepo, logger)

	ln, err := net.Listen("tcp", cfg.GatewayAddr)
	if err != nil {
		logger.Error("listen", "addr", cfg.GatewayAddr, "error", err)
		os.Exit(1)
	}
	tcp := gateway.NewTCPServer(gw, feed.NewConnHandler(feeds, gw, logger, 0), logger, cfg.ClientReadTimeout.Duration)

	srv, err := server.New(cfg, db, cache, gw, feeds, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tcp.Serve(gctx, ln)
	})
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddress())
		return srv.Listen()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutdown signal received", "signal", sig.String())
			cancel()
		case <-gctx.Done():
		}
	}()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("gateway exited cleanly")
}
