package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/bookwatch/internal/domain"
)

type fakeSource struct {
	set map[string]domain.MarketSnapshot
}

func (f *fakeSource) Snapshots(ctx context.Context) (map[string]domain.MarketSnapshot, error) {
	return f.set, nil
}

func (f *fakeSource) Snapshot(ctx context.Context, instrument string) (domain.MarketSnapshot, error) {
	snap, ok := f.set[instrument]
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

type fakeHistory struct {
	snaps []domain.MarketSnapshot
	limit int
}

func (f *fakeHistory) InsertBatch(ctx context.Context, snaps []domain.MarketSnapshot) error {
	return nil
}

func (f *fakeHistory) ListRecent(ctx context.Context, instrument string, limit int) ([]domain.MarketSnapshot, error) {
	f.limit = limit
	return f.snaps, nil
}

func (f *fakeHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func newTestMux(h *SnapshotHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshots", h.ListSnapshots)
	mux.HandleFunc("GET /api/snapshots/{instrument}", h.GetSnapshot)
	mux.HandleFunc("GET /api/snapshots/{instrument}/history", h.History)
	return mux
}

func TestListSnapshotsSortedByInstrument(t *testing.T) {
	source := &fakeSource{set: map[string]domain.MarketSnapshot{
		"ETH-USD": {Instrument: "ETH-USD"},
		"BTC-USD": {Instrument: "BTC-USD"},
	}}
	mux := newTestMux(NewSnapshotHandler(source, nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count     int                     `json:"count"`
		Snapshots []domain.MarketSnapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "BTC-USD", body.Snapshots[0].Instrument)
	assert.Equal(t, "ETH-USD", body.Snapshots[1].Instrument)
}

func TestGetSnapshotFound(t *testing.T) {
	source := &fakeSource{set: map[string]domain.MarketSnapshot{
		"BTC-USD": {Instrument: "BTC-USD", MidPrice: 100.01},
	}}
	mux := newTestMux(NewSnapshotHandler(source, nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots/BTC-USD", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var snap domain.MarketSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 100.01, snap.MidPrice)
}

func TestGetSnapshotNotFound(t *testing.T) {
	mux := newTestMux(NewSnapshotHandler(&fakeSource{}, nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots/DOGE-USD", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryWithoutStoreNotImplemented(t *testing.T) {
	mux := newTestMux(NewSnapshotHandler(&fakeSource{}, nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots/BTC-USD/history", nil))

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHistoryCapsLimit(t *testing.T) {
	store := &fakeHistory{}
	mux := newTestMux(NewSnapshotHandler(&fakeSource{}, store))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots/BTC-USD/history?limit=99999", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, store.limit)
}
