package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	calls int
	vec   []float32
	err   error
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func TestEmbeddingCacheHitsLRUBeforeProvider(t *testing.T) {
	provider := &stubProvider{vec: []float32{1, 2, 3}}
	c, err := NewEmbeddingCache(provider, 16, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewEmbeddingCache() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		vec, err := c.Encode(context.Background(), "def foo(): pass")
		if err != nil {
			t.Fatalf("Encode() error: %v", err)
		}
		if len(vec) != 3 {
			t.Fatalf("len(vec) = %d, want 3", len(vec))
		}
	}
	if provider.calls != 1 {
		t.Errorf("provider.calls = %d, want 1 (LRU should absorb repeats)", provider.calls)
	}
}

func TestEmbeddingCacheFallsBackToSharedLayer(t *testing.T) {
	provider := &stubProvider{vec: []float32{0.5, 0.5}}
	shared := NewMemoryShared()
	c, err := NewEmbeddingCache(provider, 16, time.Minute, shared)
	if err != nil {
		t.Fatalf("NewEmbeddingCache() error: %v", err)
	}

	if _, err := c.Encode(context.Background(), "text a"); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	// A second cache with an empty LRU but the same shared backing should
	// hit the shared layer instead of calling the provider again.
	c2, err := NewEmbeddingCache(provider, 16, time.Minute, shared)
	if err != nil {
		t.Fatalf("NewEmbeddingCache() error: %v", err)
	}
	if _, err := c2.Encode(context.Background(), "text a"); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider.calls = %d, want 1 (shared layer should absorb the second cache's miss)", provider.calls)
	}
}

type erroringShared struct{}

func (erroringShared) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("shared unavailable")
}
func (erroringShared) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("shared unavailable")
}
func (erroringShared) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (erroringShared) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func TestEmbeddingCacheSoftFailsOnSharedError(t *testing.T) {
	provider := &stubProvider{vec: []float32{1}}
	c, err := NewEmbeddingCache(provider, 16, time.Minute, erroringShared{})
	if err != nil {
		t.Fatalf("NewEmbeddingCache() error: %v", err)
	}

	if _, err := c.Encode(context.Background(), "x"); err != nil {
		t.Fatalf("Encode() returned error despite shared failure being soft: %v", err)
	}

	c.sharedMu.Lock()
	disabled := c.shared == nil
	c.sharedMu.Unlock()
	if !disabled {
		t.Error("expected shared layer to be disabled after an error")
	}
}
