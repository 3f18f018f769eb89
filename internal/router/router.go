package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// Dependencies holds every injected service the router wires into handlers.
type Dependencies struct {
	Backends map[string]handler.Pinger
	Version  string

	FrontendURL string
	Metrics     *middleware.Metrics
	MetricsReg  *prometheus.Registry

	Search       handler.SearchDeps
	IngestChunks handler.IngestDeps
	CommitTus    handler.CommitTusDeps
	FetchLines   handler.FetchLinesDeps
	Feedback     handler.FeedbackDeps
	Salts        *service.SaltProvider
	Stats        *service.StatsTracker
}

// New creates and configures the Chi router with every route the service
// exposes: health, search, ingestion, feedback, tenant salt, and metrics.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/v1/health", handler.Health(deps.Backends, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}
	r.Get("/v1/metrics", handler.StatsMetrics(deps.Stats))
	r.Get("/v1/tenant/salt", handler.TenantSalt(deps.Salts))

	searchTimeout := middleware.Timeout(10 * time.Second)
	r.With(searchTimeout).Post("/v1/search", handler.Search(deps.Search))
	r.With(searchTimeout).Post("/v1/search/fetch-lines", handler.FetchLines(deps.FetchLines))

	ingestTimeout := middleware.Timeout(30 * time.Second)
	r.With(ingestTimeout).Post("/v1/index/upload", handler.IngestChunks(deps.IngestChunks))
	r.With(ingestTimeout).Post("/v1/index/commit_tus", handler.CommitTus(deps.CommitTus))

	r.Post("/v1/feedback", handler.Feedback(deps.Feedback))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "route not found",
		})
	})

	return r
}
