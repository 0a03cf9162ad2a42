package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quantfeed/bookwatch/internal/domain"
)

// snapshotHashKey is the hash holding the last published snapshot per
// instrument, field = instrument ID, value = JSON-encoded MarketSnapshot.
// Keeping the whole working set in one hash makes GetAll a single HGETALL
// and lets an external consumer read a consistent view without scanning.
const snapshotHashKey = "bookwatch:snapshots"

// SnapshotCache implements domain.SnapshotCache on a single Redis hash.
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache on the given connection.
func NewSnapshotCache(rdb *redis.Client) *SnapshotCache {
	return &SnapshotCache{rdb: rdb}
}

// SetSnapshot stores the latest snapshot for snap.Instrument, overwriting any
// previous value.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, snap domain.MarketSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Instrument, err)
	}
	if err := sc.rdb.HSet(ctx, snapshotHashKey, snap.Instrument, data).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Instrument, err)
	}
	return nil
}

// GetSnapshot returns the last stored snapshot for an instrument. It returns
// domain.ErrNotFound when no snapshot has been stored.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, instrument string) (domain.MarketSnapshot, error) {
	data, err := sc.rdb.HGet(ctx, snapshotHashKey, instrument).Bytes()
	if err == redis.Nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot: %w: %s", domain.ErrNotFound, instrument)
	}
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", instrument, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", instrument, err)
	}
	return snap, nil
}

// GetAll returns every stored snapshot keyed by instrument. Fields that fail
// to decode are skipped; a partially corrupt hash should not take down every
// reader.
func (sc *SnapshotCache) GetAll(ctx context.Context) (map[string]domain.MarketSnapshot, error) {
	vals, err := sc.rdb.HGetAll(ctx, snapshotHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get all snapshots: %w", err)
	}

	out := make(map[string]domain.MarketSnapshot, len(vals))
	for instrument, raw := range vals {
		var snap domain.MarketSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			continue
		}
		out[instrument] = snap
	}
	return out, nil
}

// Delete removes the stored snapshot for an instrument. Deleting an absent
// instrument is a no-op.
func (sc *SnapshotCache) Delete(ctx context.Context, instrument string) error {
	if err := sc.rdb.HDel(ctx, snapshotHashKey, instrument).Err(); err != nil {
		return fmt.Errorf("redis: delete snapshot %s: %w", instrument, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
