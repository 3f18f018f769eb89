package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

type stubBlobStore struct {
	data []byte
	err  error
}

func (s *stubBlobStore) Download(ctx context.Context, bucket, object string) ([]byte, error) {
	return s.data, s.err
}

func newTestCommitTusDeps(data []byte) (CommitTusDeps, *recordingVectorIndex, *recordingLexicalIndex) {
	vecs := &recordingVectorIndex{}
	lex := &recordingLexicalIndex{}
	deps := CommitTusDeps{
		Blobs:          &stubBlobStore{data: data},
		Vectors:        vecs,
		Lexical:        lex,
		Embedder:       &stubEmbedder{vec: []float32{1, 0}},
		Stats:          service.NewStatsTracker(),
		APIKeys:        service.NewAPIKeyValidator(nil, false),
		Bucket:         "uploads",
		PrivacyRepoIDs: map[string]bool{"secret": true},
	}
	return deps, vecs, lex
}

func TestCommitTusIndexesFetchedObject(t *testing.T) {
	deps, vecs, lex := newTestCommitTusDeps([]byte("def foo(): return 1"))
	body := `{"tenant_id":"default","repo_id":"r","tus_key":"abc123","chunk":{"chunk_id":"c1","line_start":1,"line_end":1,"path_tokens":["a"]}}`

	req := httptest.NewRequest(http.MethodPost, "/v1/index/commit_tus", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	CommitTus(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp commitTusResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ChunkID != "c1" {
		t.Errorf("chunk_id = %q, want c1", resp.ChunkID)
	}
	if len(vecs.upserted) != 1 || vecs.upserted[0].Text != "def foo(): return 1" {
		t.Errorf("expected vector upsert with fetched text, got %+v", vecs.upserted)
	}
	if len(lex.upserted) != 1 {
		t.Error("expected lexical upsert for non-privacy repo")
	}
}

func TestCommitTusPrivacyRepoSkipsLexical(t *testing.T) {
	deps, _, lex := newTestCommitTusDeps([]byte("text"))
	body := `{"tenant_id":"default","repo_id":"secret","tus_key":"abc","chunk":{"chunk_id":"c1","line_start":1,"line_end":1}}`

	req := httptest.NewRequest(http.MethodPost, "/v1/index/commit_tus", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	CommitTus(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(lex.upserted) != 0 {
		t.Error("expected no lexical upsert for privacy repo")
	}
}

func TestCommitTusInvalidatesQueryCacheForAffectedRepo(t *testing.T) {
	deps, _, _ := newTestCommitTusDeps([]byte("def foo(): return 1"))
	qc := cache.NewQueryCache(time.Minute, nil)
	defer qc.Stop()
	deps.Cache = qc

	key := cache.QueryCacheKey{TenantID: "default", RepoID: "r", Query: "q", TopK: 12}
	qc.Set(context.Background(), key, &cache.QueryResult{SearchID: "stale"})

	body := `{"tenant_id":"default","repo_id":"r","tus_key":"abc123","chunk":{"chunk_id":"c1","line_start":1,"line_end":1,"path_tokens":["a"]}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/index/commit_tus", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	CommitTus(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if _, ok := qc.Get(context.Background(), key); ok {
		t.Error("expected commit_tus to invalidate cached query results for the affected repo")
	}
}

func TestCommitTusBlobFetchFailureIsInternalError(t *testing.T) {
	deps, _, _ := newTestCommitTusDeps(nil)
	deps.Blobs = &stubBlobStore{err: errors.New("object not found")}
	body := `{"tenant_id":"default","repo_id":"r","tus_key":"missing","chunk":{"chunk_id":"c1","line_start":1,"line_end":1}}`

	req := httptest.NewRequest(http.MethodPost, "/v1/index/commit_tus", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	CommitTus(deps)(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestCommitTusMissingFieldsIsBadRequest(t *testing.T) {
	deps, _, _ := newTestCommitTusDeps([]byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/index/commit_tus", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	CommitTus(deps)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
