package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"boardroom/internal/backend"
	"boardroom/internal/config"
	"boardroom/internal/delegate"
	"boardroom/internal/engine"
	"boardroom/internal/natsbus"
	"boardroom/internal/responder"
	"boardroom/internal/store"
	"boardroom/internal/telegram"
	"boardroom/internal/throttle"
	"boardroom/internal/vault"
	"boardroom/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("boardroom %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	case "seal":
		if err := runSeal(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "seal failed: %v\n", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: boardroom <command>

Commands:
  gateway    Start the boardroom gateway service
  seal       Encrypt an API key for use in the config file
  backup     Archive the data directory to a .tar.zst file
  restore    Restore the data directory from a backup archive
  version    Print version
`)
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting boardroom gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", bus.Port())

	// Unseal the API key when the config carries it encrypted
	if cfg.Backend.APIKey == "" && cfg.Backend.APIKeySealed != "" {
		passphrase := os.Getenv("BOARDROOM_VAULT_PASSPHRASE")
		if passphrase == "" {
			return fmt.Errorf("config has api_key_sealed but BOARDROOM_VAULT_PASSPHRASE is not set")
		}
		key, err := vault.New(passphrase).Open(cfg.Backend.APIKeySealed)
		if err != nil {
			return fmt.Errorf("unseal api key: %w", err)
		}
		cfg.Backend.APIKey = key
	}

	// Completion backend
	client, err := backend.NewClient(cfg.Backend)
	if err != nil {
		return fmt.Errorf("init backend: %w", err)
	}

	// Responder registry
	reg := responder.NewRegistry(client, cfg.Responders)
	reg.RecordUsage(db)

	// Delegation pipeline
	cache := throttle.New(cfg.Throttle.Window, cfg.Throttle.Capacity)
	disp := delegate.NewDispatcher(reg, cache, delegate.DispatcherOpts{
		StepTimeout: cfg.Dispatch.StepTimeout,
		PendingWait: cfg.Dispatch.PendingWait,
		KeyPrefix:   cfg.Throttle.KeyPrefix,
	})
	syn := delegate.NewSynthesizer(reg)

	events, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	eng := engine.New(db, reg, disp, syn, events, cfg.Backend)

	// Telegram bot
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram, eng)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		go bot.Start(ctx)
		slog.Info("telegram bot started")
	} else {
		slog.Warn("telegram token not set, bot disabled")
	}

	// Web server
	srv := web.NewServer(db, bus, eng, reg, cfg.Server, version)
	go func() {
		if err := srv.Start(ctx); err != nil {
			slog.Error("web server error", "error", err)
		}
	}()
	slog.Info("web server started", "port", cfg.Server.Port)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	in, out := client.Tracker().Total()
	slog.Info("backend usage this session",
		"calls", client.Tracker().Calls(), "tokens_in", in, "tokens_out", out)

	return nil
}
