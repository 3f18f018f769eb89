package handler

import (
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// FetchLinesDeps bundles the dependencies for the privacy-mode rerank path.
type FetchLinesDeps struct {
	Reranker *service.CrossEncoderReranker
	APIKeys  *service.APIKeyValidator
}

type fetchLinesItem struct {
	ChunkID  string `json:"chunk_id"`
	RawLines string `json:"raw_lines"`
}

type fetchLinesRequest struct {
	TenantID string           `json:"tenant_id"`
	RepoID   string           `json:"repo_id"`
	Query    string           `json:"query"`
	Items    []fetchLinesItem `json:"items"`
	TopK     int              `json:"top_k"`
}

type fetchLinesResponse struct {
	Hits []model.SearchHit `json:"hits"`
}

// FetchLines handles POST /v1/search/fetch-lines: the second call of the
// privacy-mode flow, where the client sends back raw line ranges for
// cross-encoder reranking since the server never stored plaintext.
func FetchLines(deps FetchLinesDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fetchLinesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "invalid request body"))
			return
		}
		if req.TenantID == "" || req.Query == "" || len(req.Items) == 0 {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "tenant_id, query, and items are required"))
			return
		}
		if err := deps.APIKeys.Enforce(req.TenantID, r.Header.Get("x-api-key")); err != nil {
			respondError(w, r, err)
			return
		}

		chunkIDs := make([]string, len(req.Items))
		texts := make([]string, len(req.Items))
		for i, item := range req.Items {
			chunkIDs[i] = item.ChunkID
			texts[i] = item.RawLines
		}

		scored, err := deps.Reranker.Rerank(r.Context(), req.Query, chunkIDs, texts)
		if err != nil {
			respondError(w, r, apperr.Wrap(apperr.CodeModelError, "cross-encoder rerank failed", err))
			return
		}

		topK := req.TopK
		if topK <= 0 || topK > len(scored) {
			topK = len(scored)
		}

		hits := make([]model.SearchHit, 0, topK)
		for _, s := range scored[:topK] {
			hits = append(hits, model.SearchHit{
				ChunkID:    s.ChunkID,
				Score:      s.Score,
				PathTokens: []string{},
				LineSpan:   [2]int{0, 0},
				RepoID:     req.RepoID,
				Preview:    nil,
			})
		}

		respondJSON(w, http.StatusOK, fetchLinesResponse{Hits: hits})
	}
}
