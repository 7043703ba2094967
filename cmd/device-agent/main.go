package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/lodi-net/lodi/internal/agent"
	"github.com/lodi-net/lodi/internal/config"
	"github.com/lodi-net/lodi/internal/logging"
	"github.com/lodi-net/lodi/internal/signature"
)

const usage = `usage: device-agent [prompt|approve|deny]

Registers this device as the second factor for LODI_USER_ID with the
approval service at APPROVAL_ADDR, then answers push prompts.
  prompt   ask on the terminal (default)
  approve  approve every prompt
  deny     deny every prompt
`

func main() {
	mode := "prompt"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	var decide agent.Decision
	switch mode {
	case "prompt":
		decide = agent.Prompt(os.Stdin, os.Stdout)
	case "approve":
		decide = agent.AlwaysApprove
	case "deny":
		decide = agent.AlwaysDeny
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, "device-agent")

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		logger.Error("open socket", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keys := cfg.Keys()
	device := agent.NewDevice(cfg.UserID, signature.NewSigner(signature.NewToyRSA(keys.Modulus), keys), cfg.ApprovalAddr, decide, logger)
	if err := device.Register(ctx, conn); err != nil {
		color.Red("registration failed: %v", err)
		os.Exit(1)
	}
	color.Green("device registered for user %d, waiting for prompts (mode %s)", cfg.UserID, mode)

	if err := device.Listen(ctx, conn); err != nil {
		color.Red("listen: %v", err)
		os.Exit(1)
	}
}
