package handler

import (
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// StatsMetrics handles GET /v1/metrics: a JSON snapshot of the running
// search/feedback/index counters, distinct from the Prometheus exposition
// format served at /metrics.
func StatsMetrics(stats *service.StatsTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, stats.Snapshot())
	}
}
