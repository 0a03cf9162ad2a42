// Package service connects the in-process engine to external consumers: the
// Redis cache and signal bus, and the Postgres history store.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quantfeed/bookwatch/internal/domain"
	"github.com/quantfeed/bookwatch/internal/engine"
)

// SnapshotChannel is the pub/sub channel carrying one JSON-encoded
// MarketSnapshot per message.
const SnapshotChannel = "bookwatch:snapshots"

// Publisher mirrors published snapshots into the snapshot cache and fans
// them out on the signal bus. The registry callback only enqueues; all I/O
// happens on the Run goroutine so a slow Redis cannot stall delta ingestion.
type Publisher struct {
	cache  domain.SnapshotCache
	bus    domain.SignalBus
	logger *slog.Logger

	updates chan map[string]domain.MarketSnapshot
	last    map[string]domain.MarketSnapshot
}

// NewPublisher creates a Publisher. bus may be nil to mirror into the cache
// only.
func NewPublisher(cache domain.SnapshotCache, bus domain.SignalBus, logger *slog.Logger) *Publisher {
	return &Publisher{
		cache:   cache,
		bus:     bus,
		logger:  logger.With(slog.String("component", "publisher")),
		updates: make(chan map[string]domain.MarketSnapshot, 1),
		last:    make(map[string]domain.MarketSnapshot),
	}
}

// Attach subscribes the publisher to a registry and returns the unsubscribe
// function.
func (p *Publisher) Attach(registry *engine.Registry) func() {
	return registry.Subscribe(p.enqueue)
}

// enqueue hands the latest snapshot set to the Run goroutine. Each set is
// the complete current state, so when the consumer is behind only the newest
// set matters; the stale one is discarded.
func (p *Publisher) enqueue(snapshots map[string]domain.MarketSnapshot) {
	for {
		select {
		case p.updates <- snapshots:
			return
		default:
			select {
			case <-p.updates:
			default:
			}
		}
	}
}

// Run processes queued snapshot sets until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case set := <-p.updates:
			p.apply(ctx, set)
		}
	}
}

// apply writes changed snapshots to the cache and bus, and removes cache
// entries for instruments that left the set.
func (p *Publisher) apply(ctx context.Context, set map[string]domain.MarketSnapshot) {
	for instrument, snap := range set {
		if prev, ok := p.last[instrument]; ok && prev == snap {
			continue
		}
		p.last[instrument] = snap

		if err := p.cache.SetSnapshot(ctx, snap); err != nil {
			p.logger.Warn("cache write failed",
				slog.String("instrument", instrument),
				slog.String("error", err.Error()),
			)
			continue
		}
		if p.bus != nil {
			payload, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if err := p.bus.Publish(ctx, SnapshotChannel, payload); err != nil {
				p.logger.Warn("bus publish failed",
					slog.String("instrument", instrument),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	for instrument := range p.last {
		if _, ok := set[instrument]; ok {
			continue
		}
		delete(p.last, instrument)
		if err := p.cache.Delete(ctx, instrument); err != nil {
			p.logger.Warn("cache delete failed",
				slog.String("instrument", instrument),
				slog.String("error", err.Error()),
			)
		}
	}
}
