package domain

import (
	"context"
	"time"
)

// SnapshotStore persists published snapshots for offline analysis. The live
// engine never reads history back; this interface exists for the recording
// sink and the retention pruner.
type SnapshotStore interface {
	// InsertBatch appends snapshots; duplicates (instrument, timestamp) are skipped.
	InsertBatch(ctx context.Context, snaps []MarketSnapshot) error
	// ListRecent returns up to limit snapshots for an instrument, newest first.
	ListRecent(ctx context.Context, instrument string, limit int) ([]MarketSnapshot, error)
	// DeleteBefore removes snapshots older than the given time and returns the
	// number of rows deleted.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
