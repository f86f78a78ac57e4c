// Package bootstrap builds the notifier components from configuration.
// It is shared by the server, the worker and the CLI.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/brojonat/nemnotify/service/config"
	"github.com/brojonat/nemnotify/service/db"
	"github.com/brojonat/nemnotify/service/metrics"
	"github.com/brojonat/nemnotify/service/nem"
	"github.com/brojonat/nemnotify/service/notify"
	"github.com/brojonat/nemnotify/service/settings"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Components are the wired notifier dependencies.
type Components struct {
	Settings settings.Store
	// DB is the Postgres store, nil for the pebble backend. It also holds
	// the notification log.
	DB *db.Store

	NEM        *nem.Client
	Payments   *notify.PaymentNotifier
	Harvesting *notify.HarvestingNotifier
	Mosaics    *notify.MosaicLookup
	// Sender is nil when mail is not configured.
	Sender notify.Sender

	Reconciler nem.ReconcilerOptions

	closers []func()
	logger  *slog.Logger
}

// Open connects the settings store and cache and builds the notifiers.
// Callers must Close the result.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c := &Components{logger: logger}

	if err := c.openStore(ctx, cfg, m); err != nil {
		c.Close()
		return nil, err
	}

	nodes, err := cfg.FixedNodes()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to resolve nodes: %w", err)
	}
	c.NEM = nem.NewClient(nodes, &http.Client{Timeout: cfg.NodeHTTPTimeout}, m, logger)
	if len(nodes) == 0 {
		logger.Info("initialized NEM client, nodes follow each address's network")
	} else {
		logger.Info("initialized NEM client with fixed nodes", "nodes", len(nodes))
	}

	c.Reconciler = nem.ReconcilerOptions{
		PageSize: cfg.PageSize,
		MaxPages: cfg.MaxPages,
	}
	c.Payments = notify.NewPaymentNotifier(c.NEM, c.Reconciler, m, logger)
	c.Harvesting = notify.NewHarvestingNotifier(c.NEM, m, logger)

	cache, err := c.openCache(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Mosaics = notify.NewMosaicLookup(c.NEM, cache, cfg.MosaicCacheTTL, m, logger)

	if cfg.MailEnabled() {
		c.Sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			To:       cfg.MailTo,
		}, logger)
		logger.Info("mail delivery enabled", "smtp_host", cfg.SMTPHost, "recipients", len(cfg.MailTo))
	} else {
		logger.Warn("SMTP_HOST not set, notifications will only be logged")
	}

	return c, nil
}

func (c *Components) openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) error {
	switch cfg.StateBackend {
	case config.BackendPebble:
		store, err := settings.NewPebbleStore(cfg.PebbleDir)
		if err != nil {
			return fmt.Errorf("failed to open pebble store: %w", err)
		}
		c.closers = append(c.closers, func() { store.Close() })
		c.Settings = store
		c.logger.Info("using pebble settings store", "dir", cfg.PebbleDir)
		return nil

	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		store := db.NewStore(pool, m)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		c.DB = store
		c.Settings = store
		c.logger.Info("connected to database")
		return nil
	}
}

func (c *Components) openCache(ctx context.Context, cfg *config.Config) (notify.MosaicCache, error) {
	if cfg.RedisURL != "" {
		cache, err := notify.NewRedisCacheFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.closers = append(c.closers, func() { cache.Close() })
		c.logger.Info("using redis mosaic cache")
		return cache, nil
	}
	cache := notify.NewMemoryCache(cfg.MosaicCacheTTL)
	c.closers = append(c.closers, cache.Stop)
	c.logger.Info("using in-process mosaic cache", "ttl", cfg.MosaicCacheTTL)
	return cache, nil
}

// Close releases the store and cache, most recently opened first.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// SeedSettings copies NEM_ADDRESS, HARVEST_REMOTE and HARVEST_NODE into the
// store for fields that are still empty. Stored values always win.
func SeedSettings(ctx context.Context, store settings.Store, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	current, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	var u settings.Update
	changed := false
	if current.Address == "" && cfg.SeedAddress != "" {
		u.Address = &cfg.SeedAddress
		changed = true
	}
	if current.HarvestRemote == "" && cfg.SeedHarvestRemote != "" {
		u.HarvestRemote = &cfg.SeedHarvestRemote
		changed = true
	}
	if current.HarvestNode == "" && cfg.SeedHarvestNode != "" {
		u.HarvestNode = &cfg.SeedHarvestNode
		changed = true
	}
	if !changed {
		return nil
	}

	s, err := settings.ApplyUpdate(ctx, store, u)
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	logger.Info("seeded settings from environment",
		"address", s.Address,
		"harvest_remote", s.HarvestRemote,
		"harvest_node", s.HarvestNode,
	)
	return nil
}
