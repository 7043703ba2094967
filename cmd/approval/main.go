package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/lodi-net/lodi/internal/approval"
	"github.com/lodi-net/lodi/internal/config"
	"github.com/lodi-net/lodi/internal/logging"
	"github.com/lodi-net/lodi/internal/notification"
	"github.com/lodi-net/lodi/internal/registry"
	"github.com/lodi-net/lodi/internal/signature"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "approval")

	conn, err := net.ListenPacket("udp", cfg.ApprovalAddr)
	if err != nil {
		logger.Error("listen", "addr", cfg.ApprovalAddr, "error", err)
		os.Exit(1)
	}

	svc := approval.NewService(
		approval.NewMemoryDeviceStore(cfg.DeviceCapacity),
		registry.NewClient(cfg.RegistryAddr, cfg.UpstreamTimeout.Duration),
		signature.NewToyRSA(cfg.Modulus),
		notification.NewPacketNotifier(conn),
		logger,
		approval.Config{
			PushTimeout:     cfg.PushTimeout.Duration,
			LookupTimeout:   cfg.UpstreamTimeout.Duration,
			FreshnessWindow: cfg.FreshnessWindow.Duration,
			Policy:          cfg.Policy(),
		},
	)
	srv := approval.NewServer(svc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, conn)
	}()
	logger.Info("approval service listening", "addr", conn.LocalAddr().String(), "registry", cfg.RegistryAddr, "policy", string(cfg.Policy()))

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
	logger.Info("approval service exited cleanly")
}
