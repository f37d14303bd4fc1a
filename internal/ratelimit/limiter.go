// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles operations that share a key, such as mail sent
// through one SMTP host.
type RateLimiter interface {
	// Wait blocks until an operation for key can proceed or ctx is done.
	Wait(ctx context.Context, key string) error

	// Allow reports whether an operation for key can proceed immediately.
	Allow(key string) bool
}

// KeyedLimiter keeps one token bucket per key.
// A nil *KeyedLimiter never throttles.
type KeyedLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	limit    rate.Limit
	burst    int
}

// NewKeyedLimiter allows perMinute operations per key per minute, with up to
// burst of them back to back. perMinute <= 0 disables throttling (nil limiter).
func NewKeyedLimiter(perMinute, burst int) *KeyedLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}
}

// Wait blocks until an operation for key can proceed
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	if kl == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return kl.getLimiter(key).Wait(ctx)
}

// Allow checks if an operation can proceed immediately without blocking
func (kl *KeyedLimiter) Allow(key string) bool {
	if kl == nil {
		return true
	}
	return kl.getLimiter(key).Allow()
}

// getLimiter returns or creates the limiter for key
func (kl *KeyedLimiter) getLimiter(key string) *rate.Limiter {
	kl.mu.RLock()
	limiter, exists := kl.limiters[key]
	kl.mu.RUnlock()

	if exists {
		return limiter
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := kl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(kl.limit, kl.burst)
	kl.limiters[key] = limiter
	return limiter
}
