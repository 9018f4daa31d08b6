package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"liveness/internal/app"
	"liveness/internal/platform/config"
	"liveness/internal/platform/logger"
)

// main loads configuration, builds the logger and hands off to app.Run.
// Business logic lives in internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error("liveness service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("liveness service stopped")
}
