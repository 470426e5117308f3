package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rg/reactor/internal/accounts"
	"github.com/rg/reactor/internal/bot"
	"github.com/rg/reactor/internal/config"
	"github.com/rg/reactor/internal/dispatch"
	"github.com/rg/reactor/internal/messaging/telegram"
	"github.com/rg/reactor/internal/provision"
	"github.com/rg/reactor/internal/security"
	"github.com/rg/reactor/internal/storage"
)

const rateLimitCleanupInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("Bot stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}

	setupLogging(cfg.Logging)
	slog.Info("Starting reactor bot...")
	slog.Info(cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sanitizer, err := security.NewDefaultSanitizer(cfg.Security.SecretPatterns)
	if err != nil {
		return err
	}
	slog.Info("Security sanitizer initialized", "extra_patterns", len(cfg.Security.SecretPatterns))

	monitored, err := cfg.MonitoredChannels()
	if err != nil {
		return err
	}

	apiOpts := telegram.Options{APIEndpoint: cfg.Telegram.APIEndpoint}

	pool, err := accounts.Open(ctx, cfg.Accounts.Tokens, telegram.Opener(telegram.SessionOptions{
		Options:    apiOpts,
		RatePerSec: cfg.Accounts.RatePerSec,
	}))
	if err != nil {
		return err
	}
	slog.Info("Account pool initialized", "accounts", pool.Len(), "configured", len(cfg.Accounts.Tokens))

	dispatcher := dispatch.New(pool,
		dispatch.WithTimeout(cfg.Reactions.DispatchTimeout),
		dispatch.WithMaxConcurrency(cfg.Reactions.MaxConcurrency),
		dispatch.WithRedactor(sanitizer),
	)
	slog.Info("Dispatcher initialized",
		"timeout", cfg.Reactions.DispatchTimeout,
		"max_concurrency", cfg.Reactions.MaxConcurrency)

	var provisioner bot.Provisioner
	if cfg.Admin.Token != "" {
		store, err := storage.NewStorage(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		slog.Info("Database initialized successfully", "path", cfg.Storage.DBPath)

		admin, err := telegram.NewSession(cfg.Admin.Token, telegram.SessionOptions{Options: apiOpts})
		if err != nil {
			return err
		}
		p := provision.New(admin, pool.Identities(), store, accounts.ReactionRights())
		p.SetRedactor(sanitizer)
		provisioner = p
		slog.Info("Provisioner initialized", "admin", admin.Identity().String())
	} else {
		slog.Info("Provisioning disabled (admin.token not set)")
	}

	listenerToken := cfg.Telegram.ListenerToken
	if listenerToken == "" {
		primary, _ := pool.Primary()
		listenerToken = cfg.Accounts.Tokens[primary.Index()]
	}
	platform, err := telegram.NewClient(listenerToken, telegram.ListenerOptions{
		Options:    apiOpts,
		Mode:       cfg.Telegram.Mode,
		ListenAddr: cfg.Telegram.ListenAddr,
		WebhookURL: cfg.Telegram.WebhookURL,
	})
	if err != nil {
		return err
	}
	slog.Info("Telegram client initialized", "username", platform.Username())

	handler := bot.NewHandler(platform, dispatcher, provisioner, pool.Identities(), bot.Options{
		DefaultEmoji:      cfg.Reactions.DefaultEmoji,
		AllowedChatIDs:    cfg.Telegram.AllowedChatIDs,
		AdminUserIDs:      cfg.Admin.UserIDs,
		MonitoredChannels: monitored,
	})
	slog.Info("Bot handler initialized",
		"whitelist", len(cfg.Telegram.AllowedChatIDs),
		"monitored_channels", len(monitored))

	middleware := bot.NewMiddleware(cfg.Commands.RateLimit, cfg.Commands.RateWindow)
	middleware.StartCleanupWorker(rateLimitCleanupInterval)
	defer middleware.Stop()

	slog.Info("Bot is ready to receive messages!")

	if err := platform.Start(ctx, middleware.Logger(middleware.RateLimit(handler.HandleMessage))); err != nil {
		return err
	}

	slog.Info("Shut down gracefully")
	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
