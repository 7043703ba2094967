package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/lodi-net/lodi/internal/agent"
	"github.com/lodi-net/lodi/internal/config"
	"github.com/lodi-net/lodi/internal/registry"
	"github.com/lodi-net/lodi/internal/signature"
	"github.com/lodi-net/lodi/internal/wire"
)

const usage = `usage: lodi-client <command>

Commands:
  register   publish LODI_USER_ID's public key to the registry at REGISTRY_ADDR
  login      log in through the gateway at GATEWAY_ADDR and open a feed shell

Feed shell commands: post <text>, follow <id>, unfollow <id>, feed, logout, quit
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keys := cfg.Keys()
	client := agent.NewClient(cfg.UserID, keys, signature.NewToyRSA(keys.Modulus),
		registry.NewClient(cfg.RegistryAddr, cfg.UpstreamTimeout.Duration), cfg.GatewayAddr)

	switch os.Args[1] {
	case "register":
		if err := client.RegisterKey(ctx); err != nil {
			color.Red("register key: %v", err)
			os.Exit(1)
		}
		color.Green("public key registered for user %d", cfg.UserID)
	case "login":
		fmt.Println("waiting for approval on your device...")
		session, err := client.Login(ctx)
		if err != nil {
			color.Red("login failed: %v", err)
			os.Exit(1)
		}
		color.Green("%s: session %s", session.Status, session.ID)
		if err := shell(ctx, session); err != nil {
			color.Red("%v", err)
			os.Exit(1)
		}
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func shell(ctx context.Context, session *agent.Session) error {
	defer session.Close()
	prompt := color.New(color.FgCyan)
	lines := bufio.NewScanner(os.Stdin)
	for {
		prompt.Print("lodi> ")
		if !lines.Scan() {
			return session.Logout(ctx)
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(lines.Text()), " ")
		var err error
		switch cmd {
		case "":
			continue
		case "post":
			postID, perr := session.Post(ctx, arg)
			if perr == nil {
				color.Green("posted %s", postID)
			}
			err = perr
		case "follow", "unfollow":
			peer, perr := strconv.ParseUint(strings.TrimSpace(arg), 10, 32)
			if perr != nil {
				color.Yellow("usage: %s <user id>", cmd)
				continue
			}
			if cmd == "follow" {
				err = session.Follow(ctx, uint32(peer))
			} else {
				err = session.Unfollow(ctx, uint32(peer))
			}
			if err == nil {
				color.Green("%s %d ok", cmd, peer)
			}
		case "feed":
			var items []agent.FeedItem
			items, err = session.Feed(ctx)
			for _, it := range items {
				fmt.Printf("%s  %s  %s\n", color.New(color.Faint).Sprint(it.At.Format("15:04:05")),
					color.New(color.Bold).Sprintf("user %d", it.Author), it.Body)
			}
		case "logout":
			if err := session.Logout(ctx); err != nil {
				return err
			}
			color.Green("logged out")
			return nil
		case "quit", "exit":
			return nil
		default:
			color.Yellow("unknown command %q", cmd)
			continue
		}
		if errors.Is(err, agent.ErrRemote) || errors.Is(err, wire.ErrTextTooLong) {
			color.Yellow("%v", err)
			continue
		}
		if err != nil {
			return err
		}
	}
}
