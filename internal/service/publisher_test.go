package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/bookwatch/internal/domain"
)

type fakeCache struct {
	mu      sync.Mutex
	snaps   map[string]domain.MarketSnapshot
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[string]domain.MarketSnapshot)}
}

func (f *fakeCache) SetSnapshot(ctx context.Context, snap domain.MarketSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[snap.Instrument] = snap
	return nil
}

func (f *fakeCache) GetSnapshot(ctx context.Context, instrument string) (domain.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[instrument]
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (f *fakeCache) GetAll(ctx context.Context) (map[string]domain.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.MarketSnapshot, len(f.snaps))
	for k, v := range f.snaps {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCache) Delete(ctx context.Context, instrument string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snaps, instrument)
	f.deleted = append(f.deleted, instrument)
	return nil
}

type fakeBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshotAt(instrument string, mid float64, ts time.Time) domain.MarketSnapshot {
	return domain.MarketSnapshot{Instrument: instrument, MidPrice: mid, Timestamp: ts}
}

func TestPublisherApplyWritesCacheAndBus(t *testing.T) {
	cache := newFakeCache()
	bus := &fakeBus{}
	p := NewPublisher(cache, bus, testLogger())

	ts := time.Now()
	p.apply(context.Background(), map[string]domain.MarketSnapshot{
		"BTC-USD": snapshotAt("BTC-USD", 100.01, ts),
	})

	got, err := cache.GetSnapshot(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, 100.01, got.MidPrice)
	assert.Equal(t, 1, bus.count())
}

func TestPublisherApplySkipsUnchangedSnapshots(t *testing.T) {
	cache := newFakeCache()
	bus := &fakeBus{}
	p := NewPublisher(cache, bus, testLogger())

	ts := time.Now()
	set := map[string]domain.MarketSnapshot{
		"BTC-USD": snapshotAt("BTC-USD", 100.01, ts),
	}
	p.apply(context.Background(), set)
	p.apply(context.Background(), set)

	assert.Equal(t, 1, bus.count())
}

func TestPublisherApplyDeletesDroppedInstruments(t *testing.T) {
	cache := newFakeCache()
	p := NewPublisher(cache, nil, testLogger())

	ts := time.Now()
	p.apply(context.Background(), map[string]domain.MarketSnapshot{
		"BTC-USD": snapshotAt("BTC-USD", 100.01, ts),
		"ETH-USD": snapshotAt("ETH-USD", 2500.5, ts),
	})
	p.apply(context.Background(), map[string]domain.MarketSnapshot{
		"ETH-USD": snapshotAt("ETH-USD", 2500.5, ts),
	})

	assert.Equal(t, []string{"BTC-USD"}, cache.deleted)
	_, err := cache.GetSnapshot(context.Background(), "BTC-USD")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPublisherEnqueueLatestWins(t *testing.T) {
	p := NewPublisher(newFakeCache(), nil, testLogger())

	ts := time.Now()
	p.enqueue(map[string]domain.MarketSnapshot{"BTC-USD": snapshotAt("BTC-USD", 1, ts)})
	p.enqueue(map[string]domain.MarketSnapshot{"BTC-USD": snapshotAt("BTC-USD", 2, ts)})

	got := <-p.updates
	assert.Equal(t, 2.0, got["BTC-USD"].MidPrice)
}
