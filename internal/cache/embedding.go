package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EmbeddingProvider produces a single normalized embedding vector for text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache layers a bounded in-process LRU over an optional shared
// backing. Exact text is the local cache key; sha256(text) is the shared-layer
// key, matching the original's "keyed by the exact text / sha256(text)"
// split between the two layers.
type EmbeddingCache struct {
	provider EmbeddingProvider
	lru      *lru.Cache[string, []float32]
	ttl      time.Duration

	sharedMu      sync.Mutex
	shared        Shared
	sharedDisable sync.Once
}

// NewEmbeddingCache builds an EmbeddingCache with the given LRU capacity and
// optional shared backing (nil disables the shared layer).
func NewEmbeddingCache(provider EmbeddingProvider, capacity int, ttl time.Duration, shared Shared) (*EmbeddingCache, error) {
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache.NewEmbeddingCache: %w", err)
	}
	return &EmbeddingCache{provider: provider, lru: c, ttl: ttl, shared: shared}, nil
}

// Embed is an alias for Encode, satisfying service.QueryEmbedder so the
// cache can stand in wherever a raw embedding provider is expected.
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.Encode(ctx, text)
}

// Encode returns the embedding for text, consulting the LRU then the shared
// layer before invoking the provider. Both layers are populated on miss.
func (c *EmbeddingCache) Encode(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lru.Get(text); ok {
		return vec, nil
	}

	key := sharedEmbeddingKey(text)
	if vec, ok := c.getShared(ctx, key); ok {
		c.lru.Add(text, vec)
		return vec, nil
	}

	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("cache.EmbeddingCache.Encode: %w", err)
	}

	c.lru.Add(text, vec)
	c.setShared(ctx, key, vec)
	return vec, nil
}

func (c *EmbeddingCache) getShared(ctx context.Context, key string) ([]float32, bool) {
	c.sharedMu.Lock()
	shared := c.shared
	c.sharedMu.Unlock()
	if shared == nil {
		return nil, false
	}

	raw, ok, err := shared.Get(ctx, key)
	if err != nil {
		c.disableShared(err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *EmbeddingCache) setShared(ctx context.Context, key string, vec []float32) {
	c.sharedMu.Lock()
	shared := c.shared
	c.sharedMu.Unlock()
	if shared == nil {
		return
	}

	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := shared.Set(ctx, key, string(raw), c.ttl); err != nil {
		c.disableShared(err)
	}
}

// disableShared logs once and permanently turns off the shared layer for the
// remainder of the process; a failed shared cache must never surface to callers.
func (c *EmbeddingCache) disableShared(err error) {
	c.sharedDisable.Do(func() {
		slog.Error("embedding cache shared layer disabled after error", "error", err)
		c.sharedMu.Lock()
		c.shared = nil
		c.sharedMu.Unlock()
	})
}

// Len returns the number of entries in the local LRU.
func (c *EmbeddingCache) Len() int {
	return c.lru.Len()
}

func sharedEmbeddingKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return "emb:" + base64.RawURLEncoding.EncodeToString(h[:])
}
