package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/quantfeed/bookwatch/internal/domain"
)

// SnapshotSource abstracts where current snapshots come from: the in-process
// registry when the engine runs in the same binary, or the Redis cache when
// serving standalone.
type SnapshotSource interface {
	Snapshots(ctx context.Context) (map[string]domain.MarketSnapshot, error)
	Snapshot(ctx context.Context, instrument string) (domain.MarketSnapshot, error)
}

// SnapshotHandler serves current and historical market snapshots.
type SnapshotHandler struct {
	source SnapshotSource
	store  domain.SnapshotStore // nil when history is not configured
}

// NewSnapshotHandler creates a SnapshotHandler. store may be nil, which
// disables the history endpoint.
func NewSnapshotHandler(source SnapshotSource, store domain.SnapshotStore) *SnapshotHandler {
	return &SnapshotHandler{source: source, store: store}
}

// ListSnapshots returns the latest snapshot for every instrument, sorted by
// instrument for stable output.
// GET /api/snapshots
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	set, err := h.source.Snapshots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshots unavailable")
		return
	}

	out := make([]domain.MarketSnapshot, 0, len(set))
	for _, snap := range set {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Instrument < out[j].Instrument
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(out),
		"snapshots": out,
	})
}

// GetSnapshot returns the latest snapshot for one instrument.
// GET /api/snapshots/{instrument}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	instrument := r.PathValue("instrument")
	if instrument == "" {
		writeError(w, http.StatusBadRequest, "missing instrument")
		return
	}

	snap, err := h.source.Snapshot(r.Context(), instrument)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no snapshot for instrument")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// History returns recent persisted snapshots for one instrument, newest
// first.
// GET /api/snapshots/{instrument}/history
func (h *SnapshotHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "history not configured")
		return
	}

	instrument := r.PathValue("instrument")
	if instrument == "" {
		writeError(w, http.StatusBadRequest, "missing instrument")
		return
	}

	limit := queryLimit(r, 100, 1000)
	snaps, err := h.store.ListRecent(r.Context(), instrument, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument": instrument,
		"count":      len(snaps),
		"snapshots":  snaps,
	})
}
