package service

import (
	"context"
	"testing"
)

type stubCrossEncoder struct {
	scores []float64
}

func (s *stubCrossEncoder) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	return s.scores, nil
}

func TestCrossEncoderRerankerSortsDescending(t *testing.T) {
	r := NewCrossEncoderReranker(&stubCrossEncoder{scores: []float64{0.1, 0.9, 0.5}})
	got, err := r.Rerank(context.Background(), "query", []string{"c1", "c2", "c3"}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	want := []string{"c2", "c3", "c1"}
	for i, id := range want {
		if got[i].ChunkID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ChunkID, id)
		}
	}
}

func TestCrossEncoderRerankerStableOnTies(t *testing.T) {
	r := NewCrossEncoderReranker(&stubCrossEncoder{scores: []float64{0.5, 0.5, 0.5}})
	got, err := r.Rerank(context.Background(), "query", []string{"c1", "c2", "c3"}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	want := []string{"c1", "c2", "c3"}
	for i, id := range want {
		if got[i].ChunkID != id {
			t.Errorf("position %d = %s, want %s (stable order)", i, got[i].ChunkID, id)
		}
	}
}
