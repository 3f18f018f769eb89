package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// CommitTusDeps bundles the dependencies for the resumable-upload commit path.
type CommitTusDeps struct {
	Blobs          service.BlobStore
	Vectors        service.VectorIndex
	Lexical        service.LexicalIndex
	Embedder       service.QueryEmbedder
	Stats          *service.StatsTracker
	APIKeys        *service.APIKeyValidator
	Cache          *cache.QueryCache
	Bucket         string
	PrivacyRepoIDs map[string]bool
}

type commitTusRequest struct {
	TenantID string          `json:"tenant_id"`
	RepoID   string          `json:"repo_id"`
	Chunk    model.ChunkMeta `json:"chunk"`
	TusKey   string          `json:"tus_key"`
}

type commitTusResponse struct {
	Status  string `json:"status"`
	ChunkID string `json:"chunk_id"`
}

// CommitTus handles POST /v1/index/commit_tus: fetches the object a client
// assembled via a tus upload, decodes it as UTF-8 (lossy), and indexes it as
// a non-privacy text chunk — vector store always, lexical store unless the
// repo is privacy-mode.
func CommitTus(deps CommitTusDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commitTusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "invalid request body"))
			return
		}
		if req.TenantID == "" || req.RepoID == "" || req.TusKey == "" || req.Chunk.ChunkID == "" {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "tenant_id, repo_id, tus_key, and chunk.chunk_id are required"))
			return
		}
		if req.Chunk.LineStart > req.Chunk.LineEnd {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "line_start must be <= line_end"))
			return
		}

		if err := deps.APIKeys.Enforce(req.TenantID, r.Header.Get("x-api-key")); err != nil {
			respondError(w, r, err)
			return
		}

		raw, err := deps.Blobs.Download(r.Context(), deps.Bucket, req.TusKey)
		if err != nil {
			respondError(w, r, apperr.Wrap(apperr.CodeInternal, "failed to fetch uploaded object", err))
			return
		}
		text := strings.ToValidUTF8(string(raw), "�")

		chunk := req.Chunk
		chunk.TenantID = req.TenantID
		chunk.RepoID = req.RepoID
		chunk.Text = text
		chunk.PrivacyMode = false

		vec, err := deps.Embedder.Embed(r.Context(), text)
		if err != nil {
			respondError(w, r, apperr.Wrap(apperr.CodeModelError, "embedding failed", err))
			return
		}
		chunk.Vector = vec

		if err := deps.Vectors.Ensure(r.Context(), req.TenantID); err != nil {
			respondError(w, r, apperr.Wrap(apperr.CodeBackendVectorUnavailable, "ensure vector collection failed", err))
			return
		}
		if err := deps.Vectors.Upsert(r.Context(), req.TenantID, []model.ChunkMeta{chunk}); err != nil {
			respondError(w, r, apperr.Wrap(apperr.CodeBackendVectorUnavailable, "vector upsert failed", err))
			return
		}

		if !deps.PrivacyRepoIDs[req.RepoID] {
			if err := deps.Lexical.Ensure(r.Context(), req.TenantID); err != nil {
				respondError(w, r, apperr.Wrap(apperr.CodeBackendLexicalUnavailable, "ensure lexical index failed", err))
				return
			}
			if err := deps.Lexical.BulkUpsert(r.Context(), req.TenantID, []model.ChunkMeta{chunk}); err != nil {
				respondError(w, r, apperr.Wrap(apperr.CodeBackendLexicalUnavailable, "lexical upsert failed", err))
				return
			}
		}

		if deps.Cache != nil {
			deps.Cache.InvalidateRepo(req.TenantID, req.RepoID)
		}

		deps.Stats.RecordIndex()
		respondJSON(w, http.StatusOK, commitTusResponse{Status: "ok", ChunkID: chunk.ChunkID})
	}
}
