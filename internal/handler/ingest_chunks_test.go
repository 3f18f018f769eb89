package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

type recordingVectorIndex struct {
	upserted []model.ChunkMeta
}

func (r *recordingVectorIndex) Ensure(ctx context.Context, tenantID string) error { return nil }
func (r *recordingVectorIndex) Upsert(ctx context.Context, tenantID string, chunks []model.ChunkMeta) error {
	r.upserted = append(r.upserted, chunks...)
	return nil
}
func (r *recordingVectorIndex) Search(ctx context.Context, tenantID string, vector []float32, repoID string, topK int, filters service.SearchFilters) ([]service.VectorHit, error) {
	return nil, nil
}

type recordingLexicalIndex struct {
	upserted []model.ChunkMeta
}

func (r *recordingLexicalIndex) Ensure(ctx context.Context, tenantID string) error { return nil }
func (r *recordingLexicalIndex) BulkUpsert(ctx context.Context, tenantID string, chunks []model.ChunkMeta) error {
	r.upserted = append(r.upserted, chunks...)
	return nil
}
func (r *recordingLexicalIndex) BM25(ctx context.Context, tenantID string, repoID string, query string, topK int, filters service.SearchFilters) ([]service.LexicalHit, error) {
	return nil, nil
}

func newTestIngestDeps() (IngestDeps, *recordingVectorIndex, *recordingLexicalIndex) {
	vecs := &recordingVectorIndex{}
	lex := &recordingLexicalIndex{}
	deps := IngestDeps{
		Vectors:        vecs,
		Lexical:        lex,
		Embedder:       &stubEmbedder{vec: []float32{1, 0}},
		Stats:          service.NewStatsTracker(),
		APIKeys:        service.NewAPIKeyValidator(nil, false),
		PrivacyRepoIDs: map[string]bool{"secret": true},
	}
	return deps, vecs, lex
}

func TestIngestChunksNonPrivacyGoesToBothStores(t *testing.T) {
	deps, vecs, lex := newTestIngestDeps()
	body := `{"chunks":[{"chunk_id":"c1","tenant_id":"default","repo_id":"r","text":"def foo(): return 1","line_start":1,"line_end":1,"path_tokens":["a"]}]}`

	req := httptest.NewRequest(http.MethodPost, "/v1/index/upload", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	IngestChunks(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp ingestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Qdrant != 1 || resp.OpenSearch != 1 {
		t.Errorf("resp = %+v, want qdrant=1 opensearch=1", resp)
	}
	if len(vecs.upserted) != 1 || len(vecs.upserted[0].Vector) == 0 {
		t.Error("expected vector store upsert with populated vector")
	}
	if len(lex.upserted) != 1 {
		t.Error("expected lexical store upsert")
	}
}

func TestIngestChunksPrivacyModeSkipsLexical(t *testing.T) {
	deps, vecs, lex := newTestIngestDeps()
	body := `{"chunks":[{"chunk_id":"c1","tenant_id":"default","repo_id":"secret","privacy_mode":true,"vector":[1,0],"line_start":1,"line_end":1,"path_tokens":["a"]}]}`

	req := httptest.NewRequest(http.MethodPost, "/v1/index/upload", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	IngestChunks(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(vecs.upserted) != 1 {
		t.Error("expected vector store upsert")
	}
	if len(lex.upserted) != 0 {
		t.Error("expected no lexical store upsert for privacy repo")
	}
}

func TestIngestChunksPrivacyModeWithoutVectorIsBadRequest(t *testing.T) {
	deps, _, _ := newTestIngestDeps()
	body := `{"chunks":[{"chunk_id":"c1","tenant_id":"default","repo_id":"secret","privacy_mode":true,"line_start":1,"line_end":1}]}`

	req := httptest.NewRequest(http.MethodPost, "/v1/index/upload", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	IngestChunks(deps)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIngestChunksInvalidatesQueryCacheForAffectedRepo(t *testing.T) {
	deps, _, _ := newTestIngestDeps()
	qc := cache.NewQueryCache(time.Minute, nil)
	defer qc.Stop()
	deps.Cache = qc

	key := cache.QueryCacheKey{TenantID: "default", RepoID: "r", Query: "q", TopK: 12}
	qc.Set(context.Background(), key, &cache.QueryResult{SearchID: "stale"})
	if _, ok := qc.Get(context.Background(), key); !ok {
		t.Fatal("setup: expected cache entry before ingest")
	}

	body := `{"chunks":[{"chunk_id":"c1","tenant_id":"default","repo_id":"r","text":"def foo(): return 1","line_start":1,"line_end":1,"path_tokens":["a"]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/index/upload", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	IngestChunks(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if _, ok := qc.Get(context.Background(), key); ok {
		t.Error("expected ingest to invalidate cached query results for the affected repo")
	}
}

func TestIngestChunksInvalidLineSpanIsBadRequest(t *testing.T) {
	deps, _, _ := newTestIngestDeps()
	body := `{"chunks":[{"chunk_id":"c1","tenant_id":"default","repo_id":"r","text":"x","line_start":5,"line_end":1}]}`

	req := httptest.NewRequest(http.MethodPost, "/v1/index/upload", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	IngestChunks(deps)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
