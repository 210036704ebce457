package api

import (
	"net/http"

	"github.com/phrazzld/matrix-api/internal/breaker"
	"github.com/phrazzld/matrix-api/internal/cache"
)

// HealthHandler reports liveness plus circuit breaker and cache state.
type HealthHandler struct {
	registry *breaker.Registry
	cacheMgr *cache.Manager
}

// NewHealthHandler creates a HealthHandler. Both collaborators are optional;
// nil ones are simply omitted from the report.
func NewHealthHandler(registry *breaker.Registry, cacheMgr *cache.Manager) *HealthHandler {
	return &HealthHandler{registry: registry, cacheMgr: cacheMgr}
}

// Health handles GET /health. Status degrades to "degraded" when any
// breaker is open.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}

	if h.registry != nil {
		resp.Breakers = h.registry.Snapshots()
		for _, snap := range resp.Breakers {
			if snap.State == breaker.StateOpen.String() {
				resp.Status = "degraded"
			}
		}
	}
	if h.cacheMgr != nil {
		resp.Cache = h.cacheMgr.Stats()
	}

	RespondWithJSON(w, r, http.StatusOK, resp)
}
