package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"shelfstats/internal/services"
)

// HealthHandler serves liveness information.
type HealthHandler struct {
	store     *services.SessionStore
	version   string
	startedAt time.Time
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(store *services.SessionStore, version string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		version:   version,
		startedAt: time.Now(),
	}
}

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ActiveSessions int    `json:"active_sessions"`
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:         "ok",
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		ActiveSessions: h.store.Count(),
	})
}
