package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/cache"
)

// RateLimiter enforces a fixed per-minute request budget per key, backed by
// an optional Shared layer so limits hold across instances. On a Shared
// error it falls back permanently to local-process counting rather than
// surface the error to callers.
type RateLimiter struct {
	limit int
	now   func() time.Time

	shared        cache.Shared
	sharedMu      sync.Mutex
	sharedDisable sync.Once

	localMu      sync.Mutex
	localBuckets map[string]*localBucket
}

type localBucket struct {
	minute int64
	count  int
}

// NewRateLimiter builds a RateLimiter allowing limitPerMinute requests per
// key per fixed 60-second window. shared may be nil.
func NewRateLimiter(limitPerMinute int, shared cache.Shared) *RateLimiter {
	return &RateLimiter{
		limit:        limitPerMinute,
		now:          time.Now,
		shared:       shared,
		localBuckets: make(map[string]*localBucket),
	}
}

// Check increments key's counter in the current fixed window and returns
// apperr.CodeRateLimited if it exceeds the configured limit.
func (r *RateLimiter) Check(ctx context.Context, key string) error {
	window := r.now().Unix() / 60

	shared := r.currentShared()
	if shared != nil {
		count, err := r.checkShared(ctx, shared, key, window)
		if err == nil {
			if count > int64(r.limit) {
				return apperr.New(apperr.CodeRateLimited, "rate limit exceeded")
			}
			return nil
		}
		r.disableShared(err)
	}

	if r.checkLocal(key, window) > r.limit {
		return apperr.New(apperr.CodeRateLimited, "rate limit exceeded")
	}
	return nil
}

func (r *RateLimiter) checkShared(ctx context.Context, shared cache.Shared, key string, window int64) (int64, error) {
	bucketKey := fmt.Sprintf("rl:%s:%d", key, window)
	count, err := shared.Incr(ctx, bucketKey)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := shared.Expire(ctx, bucketKey, 60*time.Second); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (r *RateLimiter) checkLocal(key string, window int64) int {
	r.localMu.Lock()
	defer r.localMu.Unlock()

	b, ok := r.localBuckets[key]
	if !ok || b.minute != window {
		b = &localBucket{minute: window}
		r.localBuckets[key] = b
	}
	b.count++
	return b.count
}

func (r *RateLimiter) currentShared() cache.Shared {
	r.sharedMu.Lock()
	defer r.sharedMu.Unlock()
	return r.shared
}

func (r *RateLimiter) disableShared(err error) {
	r.sharedDisable.Do(func() {
		slog.Error("rate limiter shared layer disabled after error", "error", err)
		r.sharedMu.Lock()
		r.shared = nil
		r.sharedMu.Unlock()
	})
}
