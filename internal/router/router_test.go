package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/service"
	"github.com/connexus-ai/ragbox-backend/internal/store"
)

type okPinger struct{ err error }

func (p *okPinger) Ping(ctx context.Context) error { return p.err }

func newTestRouter(t *testing.T) http.Handler {
	salts, err := service.NewSaltProvider(nil, "", `{"default":[{"ver":1,"value":"aaa"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	stats := service.NewStatsTracker()
	deps := &Dependencies{
		Backends: map[string]handler.Pinger{"qdrant": &okPinger{}, "opensearch": &okPinger{}},
		Version:  "0.1.0",
		Search: handler.SearchDeps{
			RateLimiter: service.NewRateLimiter(1000, nil),
			APIKeys:     service.NewAPIKeyValidator(nil, false),
			Stats:       stats,
		},
		FetchLines: handler.FetchLinesDeps{
			Reranker: service.NewCrossEncoderReranker(nil),
			APIKeys:  service.NewAPIKeyValidator(nil, false),
		},
		Feedback: handler.FeedbackDeps{
			FeedbackLog: store.NewJSONLWriter(filepath.Join(t.TempDir(), "feedback.jsonl")),
			Stats:       stats,
		},
		Salts: salts,
		Stats: stats,
	}
	return New(deps)
}

func TestHealth_IsPublic(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestTenantSalt_IsPublic(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tenant/salt?tenant_id=default", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestStatsMetrics_ReturnsSnapshot(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestFeedback_AcceptsEvent(t *testing.T) {
	r := newTestRouter(t)

	body := `{"search_id":"abc","clicked_chunk_id":"c1","grade":1}`
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestSearch_MissingFieldsIsBadRequest(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != false {
		t.Error("expected success=false for 404")
	}
}
