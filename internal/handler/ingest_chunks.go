package handler

import (
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// IngestDeps bundles the dependencies for the ingestion write path.
type IngestDeps struct {
	Vectors        service.VectorIndex
	Lexical        service.LexicalIndex
	Embedder       service.QueryEmbedder
	Stats          *service.StatsTracker
	APIKeys        *service.APIKeyValidator
	Cache          *cache.QueryCache
	PrivacyRepoIDs map[string]bool
}

type ingestRequest struct {
	Chunks []model.ChunkMeta `json:"chunks"`
}

type ingestResponse struct {
	Status     string `json:"status"`
	Qdrant     int    `json:"qdrant"`
	OpenSearch int    `json:"opensearch"`
}

// IngestChunks handles POST /v1/index/upload: branches each chunk on
// privacy_mode, embedding non-privacy text chunks before upserting into the
// vector store, and upserting non-privacy chunks into the lexical store too
// unless the repo is privacy-mode.
func IngestChunks(deps IngestDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "invalid request body"))
			return
		}
		if len(req.Chunks) == 0 {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "chunks must be non-empty"))
			return
		}

		tenantID := req.Chunks[0].TenantID
		if err := deps.APIKeys.Enforce(tenantID, r.Header.Get("x-api-key")); err != nil {
			respondError(w, r, err)
			return
		}

		lexicalChunks := make(map[string][]model.ChunkMeta)
		vectorCount := 0
		for i := range req.Chunks {
			c := &req.Chunks[i]
			if c.LineStart > c.LineEnd {
				respondError(w, r, apperr.New(apperr.CodeBadRequest, "line_start must be <= line_end"))
				return
			}

			if c.PrivacyMode {
				if len(c.Vector) == 0 {
					respondError(w, r, apperr.New(apperr.CodeBadRequest, "privacy_mode chunks require a precomputed vector"))
					return
				}
			} else {
				if c.Text == "" {
					respondError(w, r, apperr.New(apperr.CodeBadRequest, "non-privacy chunks require text"))
					return
				}
				vec, err := deps.Embedder.Embed(r.Context(), c.Text)
				if err != nil {
					respondError(w, r, apperr.Wrap(apperr.CodeModelError, "embedding failed", err))
					return
				}
				c.Vector = vec
			}
			vectorCount++

			if !deps.PrivacyRepoIDs[c.RepoID] && c.Text != "" {
				lexicalChunks[c.TenantID] = append(lexicalChunks[c.TenantID], *c)
			}
		}

		if err := deps.Vectors.Ensure(r.Context(), tenantID); err != nil {
			respondError(w, r, apperr.Wrap(apperr.CodeBackendVectorUnavailable, "ensure vector collection failed", err))
			return
		}
		if err := deps.Vectors.Upsert(r.Context(), tenantID, req.Chunks); err != nil {
			respondError(w, r, apperr.Wrap(apperr.CodeBackendVectorUnavailable, "vector upsert failed", err))
			return
		}

		lexicalCount := 0
		for tid, chunks := range lexicalChunks {
			if err := deps.Lexical.Ensure(r.Context(), tid); err != nil {
				respondError(w, r, apperr.Wrap(apperr.CodeBackendLexicalUnavailable, "ensure lexical index failed", err))
				return
			}
			if err := deps.Lexical.BulkUpsert(r.Context(), tid, chunks); err != nil {
				respondError(w, r, apperr.Wrap(apperr.CodeBackendLexicalUnavailable, "lexical upsert failed", err))
				return
			}
			lexicalCount += len(chunks)
		}

		if deps.Cache != nil {
			invalidated := make(map[string]bool)
			for _, c := range req.Chunks {
				key := c.TenantID + "\x00" + c.RepoID
				if invalidated[key] {
					continue
				}
				invalidated[key] = true
				deps.Cache.InvalidateRepo(c.TenantID, c.RepoID)
			}
		}

		deps.Stats.RecordIndex()
		respondJSON(w, http.StatusOK, ingestResponse{Status: "ok", Qdrant: vectorCount, OpenSearch: lexicalCount})
	}
}
