package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/nemnotify/service/nem"
)

// State backends for the settings store.
const (
	BackendPostgres = "postgres"
	BackendPebble   = "pebble"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	LogLevel    string
	MetricsAddr string

	// NEM node configuration
	Nodes           []string // empty means the built-in list of each address's network
	NodeHTTPTimeout time.Duration
	PageSize        int
	MaxPages        int

	// Notification behavior
	NotifyOnFirstRun bool
	CheckInterval    time.Duration

	// Optional initial settings, applied when nothing is stored yet
	SeedAddress       string
	SeedHarvestRemote string
	SeedHarvestNode   string

	// Settings store
	StateBackend string
	DatabaseURL  string
	PebbleDir    string

	// NotificationRetention bounds the age of notification log entries;
	// zero keeps them forever.
	NotificationRetention time.Duration

	// Mosaic cache
	RedisURL       string // empty means in-process cache
	MosaicCacheTTL time.Duration

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Mail configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailTo       []string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")

	// NEM configuration
	cfg.Nodes = splitList(os.Getenv("NEM_NODES"))
	if _, err := nem.ParseNodes(cfg.Nodes); err != nil {
		errs = append(errs, fmt.Errorf("NEM_NODES: %w", err))
	}

	timeout, err := parseDuration("NEM_HTTP_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NodeHTTPTimeout = timeout
	}

	pageSize, err := parseInt("NEM_PAGE_SIZE", nem.DefaultPageSize)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PageSize = pageSize
	}

	maxPages, err := parseInt("NEM_MAX_PAGES", nem.DefaultMaxPages)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MaxPages = maxPages
	}

	// Notification behavior
	notifyFirst, err := parseBool("NOTIFY_ON_FIRST_RUN", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NotifyOnFirstRun = notifyFirst
	}

	interval, err := parseDuration("CHECK_INTERVAL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CheckInterval = interval
	}

	cfg.SeedAddress = os.Getenv("NEM_ADDRESS")
	cfg.SeedHarvestRemote = os.Getenv("HARVEST_REMOTE")
	cfg.SeedHarvestNode = os.Getenv("HARVEST_NODE")
	if cfg.SeedHarvestNode != "" {
		if _, err := nem.ParseNode(cfg.SeedHarvestNode); err != nil {
			errs = append(errs, fmt.Errorf("HARVEST_NODE: %w", err))
		}
	}

	// Settings store
	cfg.StateBackend = strings.ToLower(getEnvOrDefault("STATE_BACKEND", BackendPostgres))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.PebbleDir = getEnvOrDefault("PEBBLE_DIR", "./data")
	switch cfg.StateBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when STATE_BACKEND=postgres"))
		}
	case BackendPebble:
	default:
		errs = append(errs, fmt.Errorf("STATE_BACKEND: invalid value %q (must be postgres or pebble)", cfg.StateBackend))
	}

	retention, err := parseDuration("NOTIFICATION_RETENTION", "720h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NotificationRetention = retention
	}

	// Mosaic cache
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cacheTTL, err := parseDuration("MOSAIC_CACHE_TTL", "10m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MosaicCacheTTL = cacheTTL
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "nemnotify-checks")

	// Mail configuration
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	smtpPort, err := parseInt("SMTP_PORT", 587)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SMTPPort = smtpPort
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = os.Getenv("MAIL_FROM")
	cfg.MailTo = splitList(os.Getenv("MAIL_TO"))
	if cfg.SMTPHost != "" && (cfg.MailFrom == "" || len(cfg.MailTo) == 0) {
		errs = append(errs, fmt.Errorf("MAIL_FROM and MAIL_TO are required when SMTP_HOST is set"))
	}

	if err := cfg.validateRanges(); err != nil {
		errs = append(errs, err)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.StateBackend == BackendPostgres && c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required for the postgres backend"))
	}
	if c.StateBackend == BackendPebble && c.PebbleDir == "" {
		errs = append(errs, fmt.Errorf("PebbleDir is required for the pebble backend"))
	}
	if c.StateBackend != BackendPostgres && c.StateBackend != BackendPebble {
		errs = append(errs, fmt.Errorf("StateBackend must be postgres or pebble"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if err := c.validateRanges(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func (c *Config) validateRanges() error {
	switch {
	case c.PageSize < 1:
		return fmt.Errorf("NEM_PAGE_SIZE must be at least 1")
	case c.MaxPages < 1:
		return fmt.Errorf("NEM_MAX_PAGES must be at least 1")
	case c.CheckInterval < time.Minute:
		return fmt.Errorf("CHECK_INTERVAL must be at least 1 minute")
	case c.NodeHTTPTimeout <= 0:
		return fmt.Errorf("NEM_HTTP_TIMEOUT must be positive")
	case c.NotificationRetention < 0:
		return fmt.Errorf("NOTIFICATION_RETENTION must not be negative")
	}
	return nil
}

// FixedNodes parses NEM_NODES. An empty result means every address is
// queried on the built-in nodes of its own network.
func (c *Config) FixedNodes() (nem.NodeSet, error) {
	return nem.ParseNodes(c.Nodes)
}

// MailEnabled reports whether outbound mail is configured.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
