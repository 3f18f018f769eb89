package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
	"github.com/connexus-ai/ragbox-backend/internal/store"
)

// SearchDeps bundles the dependencies POST /v1/search needs.
type SearchDeps struct {
	Engine         *service.HybridSearchEngine
	Cache          *cache.QueryCache
	RateLimiter    *service.RateLimiter
	APIKeys        *service.APIKeyValidator
	Stats          *service.StatsTracker
	SearchLog      *store.JSONLWriter
	PrivacyRepoIDs map[string]bool
	DefaultAlpha   float64
	DefaultBeta    float64
	VariantAlpha   float64
	VariantBeta    float64
}

type searchRequest struct {
	TenantID     string `json:"tenant_id"`
	RepoID       string `json:"repo_id"`
	Query        string `json:"query"`
	TopK         int    `json:"top_k"`
	Lang         string `json:"lang,omitempty"`
	DirHint      string `json:"dir_hint,omitempty"`
	ExcludeTests bool   `json:"exclude_tests,omitempty"`
}

type searchResponse struct {
	SearchID       string            `json:"search_id"`
	Bucket         model.Bucket      `json:"bucket"`
	NeedFetchLines bool              `json:"need_fetch_lines"`
	Hits           []model.SearchHit `json:"hits"`
}

// Search handles POST /v1/search: key check, rate limit, query-result cache,
// A/B bucketing, fan-out, search-log append, stats.
func Search(deps SearchDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "invalid request body"))
			return
		}
		if req.TenantID == "" || req.RepoID == "" || req.Query == "" {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "tenant_id, repo_id, and query are required"))
			return
		}
		if req.TopK <= 0 {
			req.TopK = 12
		}

		apiKey := r.Header.Get("x-api-key")
		if err := deps.APIKeys.Enforce(req.TenantID, apiKey); err != nil {
			respondError(w, r, err)
			return
		}

		rateKey := apiKey
		if rateKey == "" {
			rateKey = r.RemoteAddr
		}
		if err := deps.RateLimiter.Check(r.Context(), rateKey); err != nil {
			respondError(w, r, err)
			return
		}

		needFetchLines := deps.PrivacyRepoIDs[req.RepoID]

		cacheKey := cache.QueryCacheKey{
			TenantID: req.TenantID, RepoID: req.RepoID, Query: req.Query,
			Lang: req.Lang, DirHint: req.DirHint, ExcludeTests: req.ExcludeTests, TopK: req.TopK,
		}
		if cached, ok := deps.Cache.Get(r.Context(), cacheKey); ok {
			respondJSON(w, http.StatusOK, searchResponse{
				SearchID: cached.SearchID, Bucket: cached.Bucket,
				NeedFetchLines: needFetchLines, Hits: cached.Hits,
			})
			return
		}

		searchID, err := service.NewSearchID()
		if err != nil {
			deps.Stats.RecordSearchErr()
			respondError(w, r, apperr.Wrap(apperr.CodeInternal, "failed to generate search id", err))
			return
		}
		bucket, alpha, beta, err := service.AssignBucket(searchID, deps.DefaultAlpha, deps.DefaultBeta, deps.VariantAlpha, deps.VariantBeta)
		if err != nil {
			deps.Stats.RecordSearchErr()
			respondError(w, r, apperr.Wrap(apperr.CodeInternal, "failed to assign bucket", err))
			return
		}

		start := time.Now()
		outcome, err := deps.Engine.Search(r.Context(), service.SearchParams{
			TenantID: req.TenantID, RepoID: req.RepoID, Query: req.Query, TopK: req.TopK,
			Filters: service.SearchFilters{Lang: req.Lang, DirHint: req.DirHint, ExcludeTests: req.ExcludeTests},
			Alpha: alpha, Beta: beta,
		})
		if err != nil {
			deps.Stats.RecordSearchErr()
			code := apperr.CodeBackendVectorUnavailable
			if errors.Is(err, service.ErrEmbedFailed) {
				code = apperr.CodeModelError
			}
			respondError(w, r, apperr.Wrap(code, "search failed", err))
			return
		}
		deps.Stats.RecordSearch(float64(time.Since(start).Milliseconds()))

		result := &cache.QueryResult{Hits: outcome.Hits, Debug: outcome.Debug, Bucket: bucket, SearchID: searchID}
		deps.Cache.Set(r.Context(), cacheKey, result)

		if deps.SearchLog != nil {
			event := model.SearchEvent{
				SearchID: searchID, TenantID: req.TenantID, RepoID: req.RepoID, Query: req.Query,
				Timestamp: time.Now().Unix(), Bucket: bucket, Candidates: outcome.Debug,
			}
			if err := deps.SearchLog.Append(event); err != nil {
				slog.Error("search log append failed", "error", err, "search_id", searchID)
			}
		}

		respondJSON(w, http.StatusOK, searchResponse{
			SearchID: searchID, Bucket: bucket, NeedFetchLines: needFetchLines, Hits: outcome.Hits,
		})
	}
}
