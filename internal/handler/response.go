package handler

import (
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
)

type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError writes err as a JSON envelope, mapping apperr.Error to its
// status code and any other error to 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := w.Header().Get("X-Request-ID")

	if appErr, ok := apperr.As(err); ok {
		respondJSON(w, appErr.Status, envelope{Success: false, Error: appErr.Message, RequestID: requestID})
		return
	}
	respondJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: "internal error", RequestID: requestID})
}
