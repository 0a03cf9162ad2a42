// Package engine routes decoded feed deltas to per-instrument orderbooks,
// recomputes derived metrics after every update, and fans the results out to
// subscribers.
package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantfeed/bookwatch/internal/book"
	"github.com/quantfeed/bookwatch/internal/domain"
	"github.com/quantfeed/bookwatch/internal/metrics"
)

// Registry owns one PriceLevelBook and at most one MarketSnapshot per tracked
// instrument. All book mutation goes through OnDelta/OnBookSnapshot; external
// readers only ever see published MarketSnapshots. A single mutex serializes
// updates, so a transport that parallelizes across instruments still cannot
// interleave recomputations for one instrument.
type Registry struct {
	mu        sync.Mutex
	books     map[string]*book.PriceLevelBook
	snapshots map[string]domain.MarketSnapshot
	tracked   map[string]struct{}

	calc     *metrics.Calculator
	notifier *Notifier
	logger   *slog.Logger

	connState      atomic.Int32
	droppedEntries atomic.Int64
}

// NewRegistry creates a Registry with no tracked instruments.
func NewRegistry(calc *metrics.Calculator, logger *slog.Logger) *Registry {
	return &Registry{
		books:     make(map[string]*book.PriceLevelBook),
		snapshots: make(map[string]domain.MarketSnapshot),
		tracked:   make(map[string]struct{}),
		calc:      calc,
		notifier:  NewNotifier(logger),
		logger:    logger.With(slog.String("component", "registry")),
	}
}

// OnDelta applies one incremental update: mutate the instrument's book,
// recompute metrics, and publish the refreshed snapshot set. Deltas for
// untracked instruments are ignored; feeds deliver residual messages for
// just-removed subscriptions and that is not an error. When either side of
// the book is empty after the update, publication is suppressed and the
// previous snapshot (if any) remains the last-known value.
func (r *Registry) OnDelta(d domain.Delta) {
	r.mu.Lock()

	if _, ok := r.tracked[d.Instrument]; !ok {
		r.mu.Unlock()
		r.logger.Debug("delta for untracked instrument dropped",
			slog.String("instrument", d.Instrument),
		)
		return
	}
	if d.DroppedEntries > 0 {
		r.droppedEntries.Add(int64(d.DroppedEntries))
		r.logger.Warn("delta carried malformed entries",
			slog.String("instrument", d.Instrument),
			slog.Int("dropped", d.DroppedEntries),
		)
	}

	b, ok := r.books[d.Instrument]
	if !ok {
		b = book.New()
		r.books[d.Instrument] = b
	}
	b.ApplyDelta(domain.SideBid, d.Bids)
	b.ApplyDelta(domain.SideAsk, d.Asks)

	set, published := r.recomputeLocked(d.Instrument, b, d.Timestamp)
	r.mu.Unlock()

	if published {
		r.notifier.Publish(set)
	}
}

// OnBookSnapshot handles an authoritative full-book message: the instrument's
// book is rebuilt from scratch before the levels are applied, so nothing from
// the previous stream survives.
func (r *Registry) OnBookSnapshot(d domain.Delta) {
	r.mu.Lock()
	if _, ok := r.tracked[d.Instrument]; !ok {
		r.mu.Unlock()
		return
	}
	if d.DroppedEntries > 0 {
		r.droppedEntries.Add(int64(d.DroppedEntries))
	}

	b, ok := r.books[d.Instrument]
	if !ok {
		b = book.New()
		r.books[d.Instrument] = b
	}
	b.Reset()
	b.ApplyDelta(domain.SideBid, d.Bids)
	b.ApplyDelta(domain.SideAsk, d.Asks)

	set, published := r.recomputeLocked(d.Instrument, b, d.Timestamp)
	r.mu.Unlock()

	if published {
		r.notifier.Publish(set)
	}
}

// recomputeLocked recalculates metrics for one instrument and, when the book
// is ready, stores the snapshot and returns a copy of the full set for
// publication. Caller must hold r.mu.
func (r *Registry) recomputeLocked(instrument string, b *book.PriceLevelBook, ts time.Time) (map[string]domain.MarketSnapshot, bool) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	snap, err := r.calc.Compute(
		instrument,
		b.BestLevels(domain.SideBid, 0),
		b.BestLevels(domain.SideAsk, 0),
		ts,
	)
	if err != nil {
		// ErrEmptySide is the expected case: publication is simply
		// suppressed until both sides have levels.
		return nil, false
	}
	r.snapshots[instrument] = snap
	return copySnapshots(r.snapshots), true
}

// ResetAll clears every tracked book so the next delta stream is interpreted
// from empty state. Last-known snapshots are kept and stay visible to
// subscribers until overwritten. Safe to call any number of times, including
// with no tracked books.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.books {
		b.Reset()
	}
	r.logger.Info("all books reset", slog.Int("books", len(r.books)))
}

// SetTracked declares the working set of instruments. Newly added instruments
// get their book lazily on first delta; removed ones lose book and snapshot
// immediately.
func (r *Registry) SetTracked(instruments []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]struct{}, len(instruments))
	for _, in := range instruments {
		next[in] = struct{}{}
	}
	for in := range r.tracked {
		if _, keep := next[in]; !keep {
			delete(r.books, in)
			delete(r.snapshots, in)
		}
	}
	r.tracked = next
	r.logger.Info("tracked set updated", slog.Int("instruments", len(next)))
}

// Tracked returns the current working set.
func (r *Registry) Tracked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.tracked))
	for in := range r.tracked {
		out = append(out, in)
	}
	return out
}

// Snapshot returns the last published snapshot for an instrument.
func (r *Registry) Snapshot(instrument string) (domain.MarketSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.snapshots[instrument]
	return snap, ok
}

// Snapshots returns a copy of the full set of last-known snapshots.
func (r *Registry) Snapshots() map[string]domain.MarketSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copySnapshots(r.snapshots)
}

// Subscribe registers a handler for snapshot publications and returns an
// unsubscribe function that is safe to call more than once. If any snapshots
// already exist the handler is invoked immediately with the current set, so a
// late subscriber never observes "no data yet" after the first update.
// Registration and replay are serialized with publication, so the replayed
// set cannot arrive after a fresher published one.
func (r *Registry) Subscribe(h Handler) func() {
	token := r.notifier.SubscribeWithReplay(h, func() map[string]domain.MarketSnapshot {
		r.mu.Lock()
		defer r.mu.Unlock()
		if len(r.snapshots) == 0 {
			return nil
		}
		return copySnapshots(r.snapshots)
	})
	return func() { r.notifier.Unsubscribe(token) }
}

// SetConnectionState records the transport's state, re-exposed unchanged for
// consumer convenience.
func (r *Registry) SetConnectionState(s domain.ConnectionState) {
	r.connState.Store(int32(s))
}

// ConnectionState returns the transport state last reported.
func (r *Registry) ConnectionState() domain.ConnectionState {
	return domain.ConnectionState(r.connState.Load())
}

// DroppedEntries returns the running count of malformed feed entries dropped
// at the decode boundary, surfaced for diagnostics.
func (r *Registry) DroppedEntries() int64 {
	return r.droppedEntries.Load()
}

func copySnapshots(src map[string]domain.MarketSnapshot) map[string]domain.MarketSnapshot {
	out := make(map[string]domain.MarketSnapshot, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
