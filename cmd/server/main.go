package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/nemnotify/service/bootstrap"
	"github.com/brojonat/nemnotify/service/config"
	"github.com/brojonat/nemnotify/service/metrics"
	"github.com/brojonat/nemnotify/service/server"
	"github.com/brojonat/nemnotify/service/temporal"
	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; real environment variables take precedence
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"state_backend", cfg.StateBackend,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Settings store, NEM client, notifiers and mosaic cache
	comps, err := bootstrap.Open(ctx, cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to initialize components", "error", err)
		os.Exit(1)
	}
	defer comps.Close()

	if err := bootstrap.SeedSettings(ctx, comps.Settings, cfg, logger); err != nil {
		logger.Error("failed to seed settings", "error", err)
		os.Exit(1)
	}

	deps := server.Dependencies{
		Settings:   comps.Settings,
		Mosaics:    comps.Mosaics,
		Harvesting: comps.Harvesting,
		Transfers:  comps.NEM,
		Reconciler: comps.Reconciler,
		Metrics:    metricsCollector,
	}
	if comps.DB != nil {
		deps.Notifications = comps.DB
	}

	// Temporal is optional for the server: without it the schedule endpoints are disabled
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		logger.Warn("failed to connect to temporal", "error", err)
	} else {
		defer temporalClient.Close()
		deps.Scheduler = temporalClient
	}

	// NATS is optional for the server: without it the SSE endpoints are disabled
	events, err := server.NewEventStream(cfg.NATSURL, logger)
	if err != nil {
		logger.Warn("failed to connect to NATS", "error", err)
	} else {
		deps.Events = events
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, deps, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"fixed_nodes", len(cfg.Nodes),
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
		"mail_enabled", cfg.MailEnabled(),
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
