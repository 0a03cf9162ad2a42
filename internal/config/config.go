// Package config defines the top-level configuration for bookwatch and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BOOKWATCH_* environment
// variables.
type Config struct {
	Exchange  ExchangeConfig  `toml:"exchange"`
	Feed      FeedConfig      `toml:"feed"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig holds the exchange endpoints.
type ExchangeConfig struct {
	WSURL   string `toml:"ws_url"`
	RESTURL string `toml:"rest_url"`
}

// FeedConfig holds the static instrument list used when discovery is
// disabled.
type FeedConfig struct {
	Instruments []string `toml:"instruments"`
}

// MetricsConfig holds derived-metrics parameters.
type MetricsConfig struct {
	// BandThreshold is the fractional width of the tight liquidity band
	// around each side's best price. Zero selects the built-in default.
	BandThreshold float64 `toml:"band_threshold"`
}

// DiscoveryConfig controls automatic instrument discovery.
type DiscoveryConfig struct {
	Enabled        bool     `toml:"enabled"`
	Quote          string   `toml:"quote"`
	MaxInstruments int      `toml:"max_instruments"`
	Interval       duration `toml:"interval"`
	RateLimit      int      `toml:"rate_limit"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection and history parameters.
type PostgresConfig struct {
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	RunMigrations bool     `toml:"run_migrations"`
	FlushInterval duration `toml:"flush_interval"`
	RetentionDays int      `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			WSURL:   "wss://ws-feed.exchange.coinbase.com",
			RESTURL: "https://api.exchange.coinbase.com",
		},
		Feed: FeedConfig{
			Instruments: []string{"BTC-USD", "ETH-USD"},
		},
		Metrics: MetricsConfig{
			BandThreshold: 0.00001,
		},
		Discovery: DiscoveryConfig{
			Enabled:        false,
			Quote:          "USD",
			MaxInstruments: 50,
			Interval:       duration{5 * time.Minute},
			RateLimit:      10,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bookwatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
			FlushInterval: duration{5 * time.Second},
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"feed_disconnected", "feed_errored"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true,
	"monitor": true,
	"serve":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsPostgres reports whether the configured mode persists history.
func (c *Config) NeedsPostgres() bool {
	mode := strings.ToLower(c.Mode)
	return mode == "full" || mode == "serve"
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, monitor, serve)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Exchange.WSURL == "" {
		errs = append(errs, "exchange: ws_url must not be empty")
	}
	if c.Discovery.Enabled && c.Exchange.RESTURL == "" {
		errs = append(errs, "exchange: rest_url must not be empty when discovery is enabled")
	}
	if !c.Discovery.Enabled && len(c.Feed.Instruments) == 0 && strings.ToLower(c.Mode) != "serve" {
		errs = append(errs, "feed: instruments must not be empty when discovery is disabled")
	}

	if c.Metrics.BandThreshold < 0 {
		errs = append(errs, "metrics: band_threshold must be >= 0")
	}

	if c.Discovery.Enabled {
		if c.Discovery.MaxInstruments < 0 {
			errs = append(errs, "discovery: max_instruments must be >= 0")
		}
		if c.Discovery.Interval.Duration <= 0 {
			errs = append(errs, "discovery: interval must be positive")
		}
		if c.Discovery.RateLimit < 1 {
			errs = append(errs, "discovery: rate_limit must be >= 1")
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.NeedsPostgres() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Postgres.RetentionDays < 0 {
			errs = append(errs, "postgres: retention_days must be >= 0")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if strings.ToLower(c.Mode) == "serve" && !c.Server.Enabled {
		errs = append(errs, "server: must be enabled in serve mode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
