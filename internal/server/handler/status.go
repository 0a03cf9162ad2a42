package handler

import (
	"net/http"
	"time"

	"github.com/quantfeed/bookwatch/internal/domain"
)

// EngineStatus exposes the live engine's diagnostics to the status endpoint.
type EngineStatus interface {
	ConnectionState() domain.ConnectionState
	Tracked() []string
	DroppedEntries() int64
}

// StatusHandler reports feed and engine state.
type StatusHandler struct {
	engine  EngineStatus // nil when serving without an in-process engine
	started time.Time
}

// NewStatusHandler creates a StatusHandler. engine may be nil.
func NewStatusHandler(engine EngineStatus, started time.Time) *StatusHandler {
	if started.IsZero() {
		started = time.Now().UTC()
	}
	return &StatusHandler{engine: engine, started: started}
}

// GetStatus reports the feed connection state and tracked instrument count.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if h.engine != nil {
		body["connection_state"] = h.engine.ConnectionState().String()
		body["tracked_instruments"] = len(h.engine.Tracked())
		body["dropped_entries"] = h.engine.DroppedEntries()
	} else {
		body["connection_state"] = "remote"
	}
	writeJSON(w, http.StatusOK, body)
}
