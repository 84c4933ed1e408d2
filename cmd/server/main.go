// Package main is the entry point for the Closet Matrix server.
//
// main stays small: load configuration, build the logger, make sure the
// SQLite directory exists, then hand everything to internal/server.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/closetmatrix/closet-matrix/internal/config"
	"github.com/closetmatrix/closet-matrix/internal/server"
)

func main() {
	// Logging is not configured yet, so config errors go to a default logger.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if cfg.DBDriver == config.DriverSQLite && cfg.DBPath != ":memory:" {
		// mkdir -p for the database file's directory
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if cfg.RememberSecret == "" {
		logger.Warn("REMEMBER_SECRET not set; the remember-me cookie is disabled")
	}
	if !cfg.GitHubEnabled() {
		logger.Info("GITHUB_CLIENT_ID not set; GitHub sign-in is disabled")
	}

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.JSONLogs() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
