package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger checks connectivity to a single backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health returns a handler that reports server and backend connectivity.
// GET /v1/health — returns 200 when every named backend pings successfully,
// 503 otherwise, without auth.
func Health(backends map[string]Pinger, version string) http.HandlerFunc {
	if version == "" {
		version = "0.0.0"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := "ok"
		httpStatus := http.StatusOK
		components := make(map[string]string, len(backends))

		for name, pinger := range backends {
			if err := pinger.Ping(ctx); err != nil {
				components[name] = "disconnected"
				status = "degraded"
				httpStatus = http.StatusServiceUnavailable
			} else {
				components[name] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"status":     status,
			"version":    version,
			"components": components,
		})
	}
}
