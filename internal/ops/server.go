// Package ops exposes the maintenance process's operational endpoints:
// Prometheus metrics, a health probe, and a cache statistics snapshot.
// This is not an application API; the application's HTTP layer lives in
// another service.
package ops

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wayfarer-social/backend/internal/cachemanager"
	"github.com/wayfarer-social/backend/internal/logger"
)

// Handler serves the ops endpoints.
type Handler struct {
	manager *cachemanager.Manager
	ping    func() error
}

// NewHandler creates the ops handler. ping is invoked by the health
// probe and should verify the backend connection.
func NewHandler(manager *cachemanager.Manager, ping func() error) *Handler {
	return &Handler{manager: manager, ping: ping}
}

// Router builds the ops route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/cache/stats", h.CacheStats).Methods(http.MethodGet)
	return r
}

// Health reports backend connectivity.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CacheStats returns the aggregate cache statistics snapshot.
// GET /cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.CacheStatistics(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "cache statistics failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "cache backend unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
