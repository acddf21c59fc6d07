package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/paperdrop/paperdrop/pkg/store"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Can the backing object store be reached?
type HealthHandler struct {
	store store.Store
}

// NewHealthHandler creates a new health handler.
//
// The store parameter may be nil, in which case the readiness probe reports
// unhealthy.
func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// Liveness handles GET /healthz - simple liveness probe.
//
// Returns 200 OK if the server process is running. Designed for liveness
// probes; it succeeds as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "paperdrop",
	}))
}

// Readiness handles GET /healthz/ready - readiness probe.
//
// Returns 200 OK when a LIST against the object store succeeds, 503 when
// the store is unreachable or not configured.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("store not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := h.store.List(ctx, ""); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("store unreachable: "+err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"store_latency": time.Since(start).String(),
	}))
}
