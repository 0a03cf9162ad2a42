// Package redis implements the domain snapshot cache, signal bus, and rate
// limiter interfaces on go-redis/v9. All three share one connection pool.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Pool sizing fallbacks for an Options with unset fields. They match the
// [redis] section defaults in config.example.toml.
const (
	defaultPoolSize   = 20
	defaultMaxRetries = 3
)

// Options mirrors the [redis] configuration section.
type Options struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Connect opens a go-redis client for the given options and verifies the
// connection with a ping before handing it out. The caller owns the returned
// client and must Close it on shutdown.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(clientOptions(opts))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// clientOptions translates Options into driver options, applying the pool
// defaults for unset fields.
func clientOptions(opts Options) *redis.Options {
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}

	ro := &redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		PoolSize:   opts.PoolSize,
		MaxRetries: opts.MaxRetries,
	}
	if opts.TLSEnabled {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return ro
}
