// Package discovery keeps the tracked instrument set in sync with the
// exchange's product catalog.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/quantfeed/bookwatch/internal/domain"
	"github.com/quantfeed/bookwatch/internal/engine"
	"github.com/quantfeed/bookwatch/internal/feed"
)

// ProductLister is the slice of the exchange REST API discovery needs.
type ProductLister interface {
	ListProducts(ctx context.Context, quote string) ([]string, error)
}

// Config controls what discovery tracks and how often it refreshes.
type Config struct {
	// Quote filters products to one quote currency, e.g. "USD".
	Quote string

	// MaxInstruments caps the tracked set; 0 means no cap. Products are
	// kept in lexical order so the cap is deterministic across refreshes.
	MaxInstruments int

	// Interval between catalog refreshes.
	Interval time.Duration

	// RateKey and RateLimit bound REST calls via the shared limiter, so a
	// short refresh interval cannot hammer the exchange API.
	RateKey   string
	RateLimit int
}

// Service periodically lists exchange products and pushes the result into the
// registry and the live feed subscription.
type Service struct {
	lister   ProductLister
	registry *engine.Registry
	runner   *feed.Runner
	limiter  domain.RateLimiter
	cfg      Config
	logger   *slog.Logger
}

// NewService creates a discovery service. limiter may be nil, in which case
// refreshes are paced only by cfg.Interval.
func NewService(lister ProductLister, registry *engine.Registry, runner *feed.Runner, limiter domain.RateLimiter, cfg Config, logger *slog.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.RateKey == "" {
		cfg.RateKey = "discovery:products"
	}
	return &Service{
		lister:   lister,
		registry: registry,
		runner:   runner,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "discovery")),
	}
}

// Run refreshes immediately, then on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("initial discovery failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("discovery refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Refresh lists the catalog once and applies the difference. Feed
// subscription changes are only attempted while connected; a disconnected
// feed picks up the new tracked set on its next connect.
func (s *Service) Refresh(ctx context.Context) error {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, s.cfg.RateKey, s.cfg.RateLimit, s.cfg.Interval)
		if err != nil {
			s.logger.Warn("rate limiter unavailable, proceeding", slog.String("error", err.Error()))
		} else if !allowed {
			return fmt.Errorf("discovery: refresh: %w", domain.ErrRateLimited)
		}
	}

	products, err := s.lister.ListProducts(ctx, s.cfg.Quote)
	if err != nil {
		return fmt.Errorf("discovery: list products: %w", err)
	}

	sort.Strings(products)
	if s.cfg.MaxInstruments > 0 && len(products) > s.cfg.MaxInstruments {
		products = products[:s.cfg.MaxInstruments]
	}

	added, removed := diff(s.registry.Tracked(), products)
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	s.registry.SetTracked(products)
	s.logger.Info("tracked instruments refreshed",
		slog.Int("total", len(products)),
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)),
	)

	if s.registry.ConnectionState() != domain.StateConnected {
		return nil
	}
	if err := s.runner.UpdateSubscriptions(ctx, added, removed); err != nil {
		return fmt.Errorf("discovery: update subscriptions: %w", err)
	}
	return nil
}

// diff returns the instruments present only in next (added) and only in
// current (removed).
func diff(current, next []string) (added, removed []string) {
	cur := make(map[string]struct{}, len(current))
	for _, in := range current {
		cur[in] = struct{}{}
	}
	nxt := make(map[string]struct{}, len(next))
	for _, in := range next {
		nxt[in] = struct{}{}
	}

	for in := range nxt {
		if _, ok := cur[in]; !ok {
			added = append(added, in)
		}
	}
	for in := range cur {
		if _, ok := nxt[in]; !ok {
			removed = append(removed, in)
		}
	}
	return added, removed
}
