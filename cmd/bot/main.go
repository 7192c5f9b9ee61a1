// Package main runs the Discord bot that answers !bump in member servers.
//
// It shares the web API's store and DirectoryService, so a bump from chat
// and a bump from the site go through the same cooldown check and the same
// conditional write.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sakif/dishub/internal/bot"
	"github.com/sakif/dishub/internal/config"
	"github.com/sakif/dishub/internal/ratelimit"
	"github.com/sakif/dishub/internal/server"
	"github.com/sakif/dishub/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.Level,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("bot error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	store, err := server.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("bot is using its own in-memory store; it will not see listings made on the site")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	directory := service.NewDirectoryService(store, store, logger)

	limiter := ratelimit.New(cfg.Bump.RateInterval, cfg.Bump.RateBurst)
	go limiter.Run(ctx, 10*time.Minute, logger)

	session, err := bot.NewSession(cfg.Discord.BotToken, bot.New(directory, limiter, logger), logger)
	if err != nil {
		return err
	}
	if err := session.Open(); err != nil {
		return err
	}
	defer session.Close()

	logger.Info("bot running; press Ctrl+C to stop",
		slog.Duration("rateInterval", cfg.Bump.RateInterval),
		slog.Int("rateBurst", cfg.Bump.RateBurst),
	)
	<-ctx.Done()
	logger.Info("bot shutting down")
	return nil
}
