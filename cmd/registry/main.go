package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/lodi-net/lodi/internal/config"
	"github.com/lodi-net/lodi/internal/infra"
	"github.com/lodi-net/lodi/internal/logging"
	"github.com/lodi-net/lodi/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "registry")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}

	var store registry.Store
	if db != nil {
		defer db.Close()
		pg, err := registry.NewPostgresStore(ctx, db)
		if err != nil {
			logger.Error("prepare registry table", "error", err)
			os.Exit(1)
		}
		store = pg
	} else {
		store = registry.NewMemoryStore(cfg.RegistryCapacity)
	}

	conn, err := net.ListenPacket("udp", cfg.RegistryAddr)
	if err != nil {
		logger.Error("listen", "addr", cfg.RegistryAddr, "error", err)
		os.Exit(1)
	}

	srv := registry.NewServer(registry.NewService(store, logger), logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, conn)
	}()
	logger.Info("registry listening", "addr", conn.LocalAddr().String(), "durable", db != nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	cancel()
	<-errCh
	logger.Info("registry exited cleanly")
}
