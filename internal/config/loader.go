package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BOOKWATCH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BOOKWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Exchange.WSURL, "BOOKWATCH_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.RESTURL, "BOOKWATCH_EXCHANGE_REST_URL")

	setStringSlice(&cfg.Feed.Instruments, "BOOKWATCH_FEED_INSTRUMENTS")

	setFloat64(&cfg.Metrics.BandThreshold, "BOOKWATCH_METRICS_BAND_THRESHOLD")

	setBool(&cfg.Discovery.Enabled, "BOOKWATCH_DISCOVERY_ENABLED")
	setStr(&cfg.Discovery.Quote, "BOOKWATCH_DISCOVERY_QUOTE")
	setInt(&cfg.Discovery.MaxInstruments, "BOOKWATCH_DISCOVERY_MAX_INSTRUMENTS")
	setDuration(&cfg.Discovery.Interval, "BOOKWATCH_DISCOVERY_INTERVAL")
	setInt(&cfg.Discovery.RateLimit, "BOOKWATCH_DISCOVERY_RATE_LIMIT")

	setStr(&cfg.Redis.Addr, "BOOKWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BOOKWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BOOKWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BOOKWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BOOKWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BOOKWATCH_REDIS_TLS_ENABLED")

	setStr(&cfg.Postgres.DSN, "BOOKWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BOOKWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BOOKWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BOOKWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BOOKWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BOOKWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BOOKWATCH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BOOKWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BOOKWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BOOKWATCH_POSTGRES_RUN_MIGRATIONS")
	setDuration(&cfg.Postgres.FlushInterval, "BOOKWATCH_POSTGRES_FLUSH_INTERVAL")
	setInt(&cfg.Postgres.RetentionDays, "BOOKWATCH_POSTGRES_RETENTION_DAYS")

	setBool(&cfg.Server.Enabled, "BOOKWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BOOKWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BOOKWATCH_SERVER_CORS_ORIGINS")

	setStr(&cfg.Notify.TelegramToken, "BOOKWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BOOKWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BOOKWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BOOKWATCH_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "BOOKWATCH_MODE")
	setStr(&cfg.LogLevel, "BOOKWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
