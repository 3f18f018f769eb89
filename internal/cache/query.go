// Package cache implements the embedding and query-result caches, each
// layered over an optional shared backing that soft-fails to local state.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// QueryResult is what the query cache stores per key: the search hits, the
// fusion debug trail, and the A/B bucket the search was assigned to, so a
// cache hit doesn't re-roll the bucket on every repeat request.
type QueryResult struct {
	Hits     []model.SearchHit   `json:"hits"`
	Debug    []model.DebugRecord `json:"debug"`
	Bucket   model.Bucket        `json:"bucket"`
	SearchID string              `json:"search_id"`
}

// QueryCacheKey identifies a cacheable search: everything that affects the
// result set, excluding the caller's API key.
type QueryCacheKey struct {
	TenantID     string
	RepoID       string
	Query        string
	Lang         string
	DirHint      string
	ExcludeTests bool
	TopK         int
}

// QueryCache caches RAM-local search results by QueryCacheKey, with TTL
// expiry and an optional shared backing for cross-instance hits.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]*queryEntry
	ttl     time.Duration
	stopCh  chan struct{}

	sharedMu      sync.Mutex
	shared        Shared
	sharedDisable sync.Once
}

type queryEntry struct {
	result    *QueryResult
	createdAt time.Time
	expiresAt time.Time
}

// NewQueryCache creates a QueryCache with the given TTL, optional shared
// backing (nil disables it), and starts background local-entry cleanup.
func NewQueryCache(ttl time.Duration, shared Shared) *QueryCache {
	c := &QueryCache{
		entries: make(map[string]*queryEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
		shared:  shared,
	}
	go c.cleanup()
	return c
}

// Get returns a cached QueryResult, checking the local map then the shared
// layer, and not expired locally.
func (c *QueryCache) Get(ctx context.Context, key QueryCacheKey) (*QueryResult, bool) {
	k := key.hash()

	c.mu.RLock()
	entry, ok := c.entries[k]
	c.mu.RUnlock()

	if ok {
		if time.Now().After(entry.expiresAt) {
			c.mu.Lock()
			delete(c.entries, k)
			c.mu.Unlock()
		} else {
			slog.Debug("query cache hit", "tenant_id", key.TenantID, "repo_id", key.RepoID, "age_ms", time.Since(entry.createdAt).Milliseconds())
			return entry.result, true
		}
	}

	if res, ok := c.getShared(ctx, k); ok {
		c.store(k, res)
		return res, true
	}
	return nil, false
}

// Set stores a QueryResult under key, locally and in the shared layer.
func (c *QueryCache) Set(ctx context.Context, key QueryCacheKey, result *QueryResult) {
	k := key.hash()
	c.store(k, result)
	c.setShared(ctx, k, result)
}

func (c *QueryCache) store(key string, result *QueryResult) {
	now := time.Now()
	c.mu.Lock()
	c.entries[key] = &queryEntry{result: result, createdAt: now, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

func (c *QueryCache) getShared(ctx context.Context, key string) (*QueryResult, bool) {
	c.sharedMu.Lock()
	shared := c.shared
	c.sharedMu.Unlock()
	if shared == nil {
		return nil, false
	}

	raw, ok, err := shared.Get(ctx, sharedQueryKey(key))
	if err != nil {
		c.disableShared(err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res QueryResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (c *QueryCache) setShared(ctx context.Context, key string, result *QueryResult) {
	c.sharedMu.Lock()
	shared := c.shared
	c.sharedMu.Unlock()
	if shared == nil {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := shared.Set(ctx, sharedQueryKey(key), string(raw), c.ttl); err != nil {
		c.disableShared(err)
	}
}

func (c *QueryCache) disableShared(err error) {
	c.sharedDisable.Do(func() {
		slog.Error("query cache shared layer disabled after error", "error", err)
		c.sharedMu.Lock()
		c.shared = nil
		c.sharedMu.Unlock()
	})
}

// InvalidateRepo drops every local cached entry for a tenant/repo pair,
// called after an index commit makes cached results stale. Entries in the
// shared layer are not removed: they stay until their TTL expires, and a
// later Get that misses locally can still return them.
func (c *QueryCache) InvalidateRepo(tenantID, repoID string) {
	prefix := tenantID + ":" + repoID + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of entries in the local cache.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *QueryCache) Stop() {
	close(c.stopCh)
}

func (c *QueryCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

func (k QueryCacheKey) hash() string {
	raw := fmt.Sprintf("%s\x00%s\x00%s\x00%t\x00%d", k.Query, k.Lang, k.DirHint, k.ExcludeTests, k.TopK)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s:%s:%x", k.TenantID, k.RepoID, sum[:8])
}

func sharedQueryKey(localKey string) string {
	return "q:" + localKey
}
