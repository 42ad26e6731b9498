package handlers

import (
	"net/http"

	"github.com/mirabel-dev/folio/pkg/coordinator/store"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store *store.GORMStore
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(s *store.GORMStore) *HealthHandler {
	return &HealthHandler{store: s}
}

// Live handles GET /health/live. Always healthy while the process serves.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready, checking database reachability.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
