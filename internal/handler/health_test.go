package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealthAllBackendsOK(t *testing.T) {
	handler := Health(map[string]Pinger{"qdrant": &stubPinger{}, "opensearch": &stubPinger{}}, "1.0.0")

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
}

func TestHealthOneBackendDown(t *testing.T) {
	handler := Health(map[string]Pinger{
		"qdrant":     &stubPinger{},
		"opensearch": &stubPinger{err: fmt.Errorf("connection refused")},
	}, "1.0.0")

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	components := resp["components"].(map[string]any)
	if components["opensearch"] != "disconnected" {
		t.Errorf("opensearch = %v, want disconnected", components["opensearch"])
	}
	if components["qdrant"] != "connected" {
		t.Errorf("qdrant = %v, want connected", components["qdrant"])
	}
}

func TestHealthNoBackends(t *testing.T) {
	handler := Health(nil, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
