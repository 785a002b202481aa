package visuals

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter keeps one token bucket per key. Concurrent runs share it
// so that together they stay under each provider's quota.
type KeyedRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewKeyedRateLimiter allows rps requests per second per key with the given
// burst.
func NewKeyedRateLimiter(rps float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Wait blocks until a request for key is allowed or ctx is done.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return krl.getLimiter(key).Wait(ctx)
}

func (krl *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	krl.mu.RLock()
	limiter, exists := krl.limiters[key]
	krl.mu.RUnlock()

	if exists {
		return limiter
	}

	krl.mu.Lock()
	defer krl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = krl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(krl.limit, krl.burst)
	krl.limiters[key] = limiter
	return limiter
}

// limitedProvider waits on the shared limiter before every search.
type limitedProvider struct {
	Provider
	limiter *KeyedRateLimiter
}

// RateLimited wraps p so each Search first waits for a token keyed by the
// provider name.
func RateLimited(p Provider, limiter *KeyedRateLimiter) Provider {
	if limiter == nil {
		return p
	}
	return &limitedProvider{Provider: p, limiter: limiter}
}

func (l *limitedProvider) Search(ctx context.Context, query string) ([]Hit, error) {
	if err := l.limiter.Wait(ctx, string(l.Name())); err != nil {
		return nil, err
	}
	return l.Provider.Search(ctx, query)
}

// KeyLocks serializes work on one asset key across concurrent runs in this
// process. Locks are never removed; the key space is bounded by what the
// providers return.
type KeyLocks struct {
	locks sync.Map // key -> *sync.Mutex
}

// Lock acquires the lock for key and returns its release function.
func (k *KeyLocks) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
