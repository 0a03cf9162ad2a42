package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfeed/bookwatch/internal/discovery"
	"github.com/quantfeed/bookwatch/internal/domain"
	"github.com/quantfeed/bookwatch/internal/feed"
	"github.com/quantfeed/bookwatch/internal/notify"
	"github.com/quantfeed/bookwatch/internal/platform/coinbase"
	"github.com/quantfeed/bookwatch/internal/server"
	"github.com/quantfeed/bookwatch/internal/server/handler"
	"github.com/quantfeed/bookwatch/internal/server/ws"
	"github.com/quantfeed/bookwatch/internal/service"
)

// FullMode runs the complete pipeline: feed ingestion, metrics, cache and bus
// publication, history recording, optional discovery, and the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	runner := a.startIngestion(ctx, g, deps)
	a.startDiscovery(ctx, g, deps, runner)

	publisher := service.NewPublisher(deps.SnapshotCache, deps.SignalBus, a.logger)
	unsubPub := publisher.Attach(deps.Registry)
	a.closers = append(a.closers, unsubPub)
	g.Go(func() error { return publisher.Run(ctx) })

	recorder := service.NewRecorder(
		deps.SnapshotStore,
		a.cfg.Postgres.FlushInterval.Duration,
		time.Duration(a.cfg.Postgres.RetentionDays)*24*time.Hour,
		a.logger,
	)
	unsubRec := recorder.Attach(deps.Registry)
	a.closers = append(a.closers, unsubRec)
	g.Go(func() error { return recorder.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, registrySource{deps.Registry}, deps.Registry)
	}

	return g.Wait()
}

// MonitorMode runs ingestion and cache/bus publication only: no history, no
// HTTP API. Useful on boxes that feed dashboards through Redis alone.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	runner := a.startIngestion(ctx, g, deps)
	a.startDiscovery(ctx, g, deps, runner)

	publisher := service.NewPublisher(deps.SnapshotCache, deps.SignalBus, a.logger)
	unsub := publisher.Attach(deps.Registry)
	a.closers = append(a.closers, unsub)
	g.Go(func() error { return publisher.Run(ctx) })

	return g.Wait()
}

// ServeMode runs only the HTTP API, reading current state from the Redis
// cache written by a full or monitor instance elsewhere.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, cacheSource{deps.SnapshotCache}, nil)
	return g.Wait()
}

// startIngestion sets the initial tracked set, starts the feed runner, and
// returns it for discovery wiring.
func (a *App) startIngestion(ctx context.Context, g *errgroup.Group, deps *Dependencies) *feed.Runner {
	if !a.cfg.Discovery.Enabled {
		deps.Registry.SetTracked(a.cfg.Feed.Instruments)
	}

	runner := feed.NewRunner(
		a.cfg.Exchange.WSURL,
		deps.Registry,
		a.stateNotifier(deps.Notifier),
		a.logger,
	)
	g.Go(func() error {
		defer runner.Close()
		return runner.Run(ctx)
	})
	return runner
}

// startDiscovery starts the product discovery loop when enabled.
func (a *App) startDiscovery(ctx context.Context, g *errgroup.Group, deps *Dependencies, runner *feed.Runner) {
	if !a.cfg.Discovery.Enabled {
		return
	}

	svc := discovery.NewService(
		coinbase.NewRESTClient(a.cfg.Exchange.RESTURL),
		deps.Registry,
		runner,
		deps.RateLimiter,
		discovery.Config{
			Quote:          a.cfg.Discovery.Quote,
			MaxInstruments: a.cfg.Discovery.MaxInstruments,
			Interval:       a.cfg.Discovery.Interval.Duration,
			RateLimit:      a.cfg.Discovery.RateLimit,
		},
		a.logger,
	)
	g.Go(func() error { return svc.Run(ctx) })
}

// startServer builds and runs the HTTP API with graceful shutdown tied to
// ctx. engineStatus may be nil when no in-process engine exists.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, source handler.SnapshotSource, engineStatus handler.EngineStatus) {
	started := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, []string{service.SnapshotChannel}, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(started),
			Snapshots: handler.NewSnapshotHandler(source, deps.SnapshotStore),
			Status:    handler.NewStatusHandler(engineStatus, started),
		},
		hub,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	})
}

// stateNotifier turns connection state transitions into operator alerts.
func (a *App) stateNotifier(notifier *notify.Notifier) feed.StateHandler {
	return func(ctx context.Context, state domain.ConnectionState) {
		var event string
		switch state {
		case domain.StateConnected:
			event = notify.EventFeedConnected
		case domain.StateDisconnected:
			event = notify.EventFeedDisconnected
		case domain.StateErrored:
			event = notify.EventFeedErrored
		default:
			return
		}
		if err := notifier.Notify(ctx, event, "Feed "+state.String(),
			"market data connection is now "+state.String()); err != nil {
			a.logger.Warn("state alert failed", slog.String("error", err.Error()))
		}
	}
}

// registrySource serves API reads from the in-process registry.
type registrySource struct {
	reg handlerRegistry
}

// handlerRegistry is the registry surface the API adapters need.
type handlerRegistry interface {
	Snapshots() map[string]domain.MarketSnapshot
	Snapshot(instrument string) (domain.MarketSnapshot, bool)
}

func (s registrySource) Snapshots(ctx context.Context) (map[string]domain.MarketSnapshot, error) {
	return s.reg.Snapshots(), nil
}

func (s registrySource) Snapshot(ctx context.Context, instrument string) (domain.MarketSnapshot, error) {
	snap, ok := s.reg.Snapshot(instrument)
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

// cacheSource serves API reads from the Redis cache.
type cacheSource struct {
	cache domain.SnapshotCache
}

func (s cacheSource) Snapshots(ctx context.Context) (map[string]domain.MarketSnapshot, error) {
	return s.cache.GetAll(ctx)
}

func (s cacheSource) Snapshot(ctx context.Context, instrument string) (domain.MarketSnapshot, error) {
	return s.cache.GetSnapshot(ctx, instrument)
}
