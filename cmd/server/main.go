// Package main is the entry point for the Dishub web API.
//
// The main package stays minimal. Its job is to:
//  1. Read configuration (environment, optionally a .env file)
//  2. Create dependencies (logger, store)
//  3. Start the HTTP server
//
// All actual logic lives in internal/. The chat bot is a separate binary
// (cmd/bot) sharing the same store and DirectoryService.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/dishub/internal/config"
	"github.com/sakif/dishub/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Auth.Validate()
	}
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	// Text output on stdout; LOG_LEVEL=debug also shows lost bump races and
	// rate-limited commands.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.Level,
	}))
	slog.SetDefault(logger)

	// === 3. STORE ===
	// The SQLite driver doesn't create parent directories (like `mkdir -p`).
	if cfg.Store.Driver == config.DriverSQLite {
		dbDir := filepath.Dir(cfg.Store.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	store, err := server.OpenStore(cfg.Store)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("using the in-memory store; listings are lost on restart")
	}
	if cfg.Discord.ClientID == "" {
		logger.Warn("DISCORD_CLIENT_ID not set; sign-in will fail")
	}

	// === 4. SERVE ===
	srv, err := server.New(cfg, store, logger)
	if err != nil {
		store.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	// and closes the store on the way out.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
