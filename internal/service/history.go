package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quantfeed/bookwatch/internal/domain"
	"github.com/quantfeed/bookwatch/internal/engine"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultMaxBuffer     = 500
	pruneInterval        = time.Hour
)

// Recorder persists published snapshots to the history store. Snapshots are
// buffered and flushed in batches on a timer (or earlier when the buffer
// fills), and rows older than the retention window are pruned periodically.
type Recorder struct {
	store         domain.SnapshotStore
	flushInterval time.Duration
	maxBuffer     int
	retention     time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	buffer []domain.MarketSnapshot
	last   map[string]time.Time
}

// NewRecorder creates a Recorder. A retention of 0 disables pruning.
func NewRecorder(store domain.SnapshotStore, flushInterval time.Duration, retention time.Duration, logger *slog.Logger) *Recorder {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &Recorder{
		store:         store,
		flushInterval: flushInterval,
		maxBuffer:     defaultMaxBuffer,
		retention:     retention,
		logger:        logger.With(slog.String("component", "recorder")),
		last:          make(map[string]time.Time),
	}
}

// Attach subscribes the recorder to a registry and returns the unsubscribe
// function.
func (r *Recorder) Attach(registry *engine.Registry) func() {
	return registry.Subscribe(r.collect)
}

// collect buffers the snapshots that changed since the previous publication.
// Deduplication is per (instrument, timestamp) so the synchronous full-set
// delivery does not multiply rows.
func (r *Recorder) collect(snapshots map[string]domain.MarketSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for instrument, snap := range snapshots {
		if prev, ok := r.last[instrument]; ok && !snap.Timestamp.After(prev) {
			continue
		}
		r.last[instrument] = snap.Timestamp
		r.buffer = append(r.buffer, snap)
	}

	if len(r.buffer) >= r.maxBuffer {
		// Flush out of band; holding the registry's publish path for a
		// database round trip is not acceptable.
		batch := r.buffer
		r.buffer = nil
		go r.insert(context.Background(), batch)
	}
}

// Run flushes on a timer and prunes old rows until ctx is cancelled. The
// final buffer is flushed on shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	flush := time.NewTicker(r.flushInterval)
	defer flush.Stop()

	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-flush.C:
			r.Flush(ctx)
		case <-prune.C:
			r.pruneOld(ctx)
		}
	}
}

// Flush writes the buffered snapshots to the store.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	batch := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	r.insert(ctx, batch)
}

func (r *Recorder) insert(ctx context.Context, batch []domain.MarketSnapshot) {
	if err := r.store.InsertBatch(ctx, batch); err != nil {
		r.logger.Error("history insert failed",
			slog.Int("snapshots", len(batch)),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Debug("history flushed", slog.Int("snapshots", len(batch)))
}

func (r *Recorder) pruneOld(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.retention)
	deleted, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("history prune failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		r.logger.Info("history pruned",
			slog.Int64("rows", deleted),
			slog.Time("cutoff", cutoff),
		)
	}
}
