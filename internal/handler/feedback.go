package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
	"github.com/connexus-ai/ragbox-backend/internal/store"
)

// FeedbackDeps bundles the dependencies for the feedback-logging path.
type FeedbackDeps struct {
	FeedbackLog *store.JSONLWriter
	Stats       *service.StatsTracker
}

type feedbackRequest struct {
	SearchID       string `json:"search_id"`
	ClickedChunkID string `json:"clicked_chunk_id"`
	Grade          int    `json:"grade"`
}

// Feedback handles POST /v1/feedback: appends a click/grade event to the
// feedback log for offline ranker training.
func Feedback(deps FeedbackDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "invalid request body"))
			return
		}
		if req.SearchID == "" {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "search_id is required"))
			return
		}

		event := model.FeedbackEvent{
			SearchID:       req.SearchID,
			ClickedChunkID: req.ClickedChunkID,
			Grade:          req.Grade,
			Timestamp:      time.Now().Unix(),
		}
		if err := deps.FeedbackLog.Append(event); err != nil {
			respondError(w, r, apperr.Wrap(apperr.CodeInternal, "failed to record feedback", err))
			return
		}

		deps.Stats.RecordFeedback()
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
