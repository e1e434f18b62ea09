// Package main is the entry point for the paper trading server.
// It loads configuration, wires the DI container, starts the background
// scheduler and serves the HTTP API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sanbist/papertrader/internal/config"
	"github.com/sanbist/papertrader/internal/di"
	"github.com/sanbist/papertrader/internal/server"
	"github.com/sanbist/papertrader/internal/version"
	"github.com/sanbist/papertrader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
		App:    "papertrader",
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("version", version.Version).
		Str("data_dir", cfg.DataDir).
		Msg("Starting papertrader")

	// Databases, repositories, services and scheduled jobs
	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	// Prime the snapshot so the first requests have prices, whatever the session
	initialCtx, initialCancel := context.WithTimeout(context.Background(), cfg.FeedTimeout)
	if _, err := container.MarketService.Refresh(initialCtx); err != nil {
		log.Warn().Err(err).Msg("Initial market refresh failed, serving cached snapshot")
	}
	initialCancel()

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Jobs:      jobs.All(),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Waits for running jobs so no backup or refresh is cut mid-write
	container.Scheduler.Stop()
	log.Info().Msg("Scheduler stopped")

	log.Info().Msg("Server stopped")
}
