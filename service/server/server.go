package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/nemnotify/service/metrics"
	"github.com/brojonat/nemnotify/service/nem"
	"github.com/brojonat/nemnotify/service/settings"
	"github.com/brojonat/nemnotify/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the collaborators of the HTTP server.
type Dependencies struct {
	Settings   settings.Store
	Mosaics    MosaicQuantifier
	Harvesting temporal.HarvestingChecker
	Transfers  nem.TransferFetcher
	Reconciler nem.ReconcilerOptions

	Notifications NotificationLister // Optional: if nil, the notification log is not served
	Scheduler     temporal.Scheduler // Optional: if nil, schedule endpoints are disabled
	Events        *EventStream       // Optional: if nil, SSE endpoints are disabled
	Metrics       *metrics.Metrics   // Optional: if nil, metrics endpoints are disabled
}

// Server represents the HTTP server for the notifier.
type Server struct {
	addr     string
	deps     Dependencies
	renderer *TemplateRenderer
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
func New(addr string, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		deps:   deps,
		logger: logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// instrument wraps h with HTTP metrics when metrics are configured.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.deps.Metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.deps.Metrics, name)(h)
}

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	d := s.deps

	mux.Handle("GET /api/v1/settings", s.instrument("get_settings", handleGetSettings(d.Settings, s.logger)))
	mux.Handle("PUT /api/v1/settings", s.instrument("update_settings", handleUpdateSettings(d.Settings, s.logger)))
	mux.Handle("GET /api/v1/mosaics/{address}", s.instrument("get_mosaic", handleGetMosaicQuantity(d.Mosaics, s.logger)))
	mux.Handle("GET /api/v1/harvesting", s.instrument("get_harvesting", handleGetHarvesting(d.Settings, d.Harvesting, s.logger)))
	mux.Handle("GET /api/v1/transactions/{address}", s.instrument("list_transactions", handleListTransactions(d.Transfers, d.Reconciler, s.logger)))

	if d.Notifications != nil {
		mux.Handle("GET /api/v1/notifications", s.instrument("list_notifications", handleListNotifications(d.Notifications, s.logger)))
	}

	if d.Scheduler != nil {
		mux.Handle("PUT /api/v1/schedules", s.instrument("upsert_schedules", handleUpsertSchedules(d.Scheduler, s.logger)))
		mux.Handle("DELETE /api/v1/schedules", s.instrument("delete_schedules", handleDeleteSchedules(d.Scheduler, s.logger)))
	}

	if d.Events != nil {
		mux.Handle("GET /api/v1/stream/payments/{address}", handleStreamEvents(d.Events, "payments", s.logger))
		mux.Handle("GET /api/v1/stream/payments", handleStreamEvents(d.Events, "payments", s.logger))
		mux.Handle("GET /api/v1/stream/harvesting", handleStreamEvents(d.Events, "harvesting", s.logger))
	}

	if s.renderer != nil {
		mux.Handle("GET /embed/mosaic", s.instrument("embed_mosaic", handleMosaicEmbed(s.renderer, d.Mosaics)))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if d.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	if s.deps.Events == nil {
		s.logger.Warn("NATS not configured, streaming endpoints disabled")
	}
	if s.deps.Scheduler == nil {
		s.logger.Warn("Temporal not configured, schedule endpoints disabled")
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.deps.Events != nil {
		s.deps.Events.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
