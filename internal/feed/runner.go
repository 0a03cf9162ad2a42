// Package feed runs the market data connection lifecycle: dial, subscribe,
// stream, and reconnect with backoff when the exchange drops us.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quantfeed/bookwatch/internal/domain"
	"github.com/quantfeed/bookwatch/internal/engine"
	"github.com/quantfeed/bookwatch/internal/platform/coinbase"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 60 * time.Second
	connectTimeout = 15 * time.Second
)

// StateHandler is notified on every connection state transition, after the
// registry has been updated. Used for operator alerts.
type StateHandler func(ctx context.Context, state domain.ConnectionState)

// Runner drives one WebSocket connection to the level2 feed and pumps decoded
// deltas into the registry. It owns reconnection: every reconnect resets all
// books first, because the feed re-sends full snapshots on subscribe and
// stale levels from the dead connection must not leak into the new stream.
type Runner struct {
	wsURL    string
	registry *engine.Registry
	onState  StateHandler
	logger   *slog.Logger

	mu     sync.Mutex
	client *coinbase.WSClient

	closeOnce sync.Once
	done      chan struct{}
}

// NewRunner creates a feed runner. onState may be nil.
func NewRunner(wsURL string, registry *engine.Registry, onState StateHandler, logger *slog.Logger) *Runner {
	return &Runner{
		wsURL:    wsURL,
		registry: registry,
		onState:  onState,
		logger:   logger.With(slog.String("component", "feed")),
		done:     make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled or Close is called,
// reconnecting with exponential backoff in between.
func (r *Runner) Run(ctx context.Context) error {
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return nil
		default:
		}

		r.setState(ctx, domain.StateConnecting)

		err := r.runConnection(ctx)
		if ctx.Err() != nil {
			r.setState(ctx, domain.StateDisconnected)
			return ctx.Err()
		}
		select {
		case <-r.done:
			r.setState(ctx, domain.StateDisconnected)
			return nil
		default:
		}

		if err != nil {
			r.setState(ctx, domain.StateErrored)
			r.logger.Warn("feed connection lost, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runConnection dials once and streams until the connection dies.
func (r *Runner) runConnection(ctx context.Context) error {
	client := coinbase.NewWSClient(r.wsURL)
	defer client.Close()

	client.OnSnapshot(r.registry.OnBookSnapshot)
	client.OnDelta(r.registry.OnDelta)

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}

	// The new stream starts from authoritative snapshots; discard whatever
	// the previous connection left behind.
	r.registry.ResetAll()

	instruments := r.registry.Tracked()
	if len(instruments) > 0 {
		if err := client.Subscribe(ctx, instruments); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.client = client
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.client = nil
		r.mu.Unlock()
	}()

	r.setState(ctx, domain.StateConnected)
	r.logger.Info("feed connected",
		slog.String("url", r.wsURL),
		slog.Int("instruments", len(instruments)),
	)

	return client.Listen(ctx)
}

// UpdateSubscriptions applies a tracked-set change to the live connection.
// When disconnected this is a no-op: the next connect subscribes to the
// registry's full tracked set anyway.
func (r *Runner) UpdateSubscriptions(ctx context.Context, added, removed []string) error {
	r.mu.Lock()
	client := r.client
	r.mu.Unlock()

	if client == nil {
		return nil
	}

	if len(removed) > 0 {
		if err := client.Unsubscribe(ctx, removed); err != nil {
			return err
		}
	}
	if len(added) > 0 {
		if err := client.Subscribe(ctx, added); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the runner. Safe to call more than once.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		client := r.client
		r.mu.Unlock()
		if client != nil {
			client.Close()
		}
	})
}

func (r *Runner) setState(ctx context.Context, state domain.ConnectionState) {
	if r.registry.ConnectionState() == state {
		return
	}
	r.registry.SetConnectionState(state)
	r.logger.Info("connection state changed", slog.String("state", state.String()))
	if r.onState != nil {
		r.onState(ctx, state)
	}
}
