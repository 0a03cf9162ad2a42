package domain

import (
	"context"
	"time"
)

// SnapshotCache provides fast access to the last published metrics per
// instrument, for consumers that do not hold an in-process subscription
// (e.g. the serve-only HTTP API).
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap MarketSnapshot) error
	GetSnapshot(ctx context.Context, instrument string) (MarketSnapshot, error)
	GetAll(ctx context.Context) (map[string]MarketSnapshot, error)
	Delete(ctx context.Context, instrument string) error
}

// RateLimiter gates outbound requests to the exchange (subscription commands,
// product listings).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of snapshot and status events to
// out-of-process consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
