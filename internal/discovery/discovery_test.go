package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/bookwatch/internal/domain"
	"github.com/quantfeed/bookwatch/internal/engine"
	"github.com/quantfeed/bookwatch/internal/metrics"
)

type fakeLister struct {
	products []string
	err      error
	calls    int
}

func (f *fakeLister) ListProducts(ctx context.Context, quote string) ([]string, error) {
	f.calls++
	return f.products, f.err
}

type fakeLimiter struct {
	allow bool
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return f.allow, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry() *engine.Registry {
	return engine.NewRegistry(metrics.NewCalculator(0), testLogger())
}

func TestRefreshSetsTrackedSet(t *testing.T) {
	reg := newRegistry()
	lister := &fakeLister{products: []string{"ETH-USD", "BTC-USD"}}
	svc := NewService(lister, reg, nil, nil, Config{Quote: "USD"}, testLogger())

	require.NoError(t, svc.Refresh(context.Background()))
	assert.ElementsMatch(t, []string{"BTC-USD", "ETH-USD"}, reg.Tracked())
}

func TestRefreshCapsInstrumentsDeterministically(t *testing.T) {
	reg := newRegistry()
	lister := &fakeLister{products: []string{"ETH-USD", "BTC-USD", "SOL-USD"}}
	svc := NewService(lister, reg, nil, nil, Config{MaxInstruments: 2}, testLogger())

	require.NoError(t, svc.Refresh(context.Background()))
	// Lexical order, then truncate.
	assert.ElementsMatch(t, []string{"BTC-USD", "ETH-USD"}, reg.Tracked())
}

func TestRefreshNoChangeIsNoop(t *testing.T) {
	reg := newRegistry()
	lister := &fakeLister{products: []string{"BTC-USD"}}
	svc := NewService(lister, reg, nil, nil, Config{}, testLogger())

	require.NoError(t, svc.Refresh(context.Background()))
	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, 2, lister.calls)
	assert.Equal(t, []string{"BTC-USD"}, reg.Tracked())
}

func TestRefreshPropagatesListerError(t *testing.T) {
	reg := newRegistry()
	lister := &fakeLister{err: errors.New("boom")}
	svc := NewService(lister, reg, nil, nil, Config{}, testLogger())

	err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Empty(t, reg.Tracked())
}

func TestRefreshRateLimited(t *testing.T) {
	reg := newRegistry()
	lister := &fakeLister{products: []string{"BTC-USD"}}
	svc := NewService(lister, reg, nil, &fakeLimiter{allow: false}, Config{RateLimit: 1}, testLogger())

	err := svc.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 0, lister.calls)
}

func TestDiff(t *testing.T) {
	added, removed := diff([]string{"a", "b"}, []string{"b", "c"})
	assert.ElementsMatch(t, []string{"c"}, added)
	assert.ElementsMatch(t, []string{"a"}, removed)
}
