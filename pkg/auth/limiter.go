package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	fallbackRPS   = 5
	fallbackBurst = 10
)

// keyLimiters hands out one token bucket per API key, or per client IP for
// callers that never presented a key. Buckets are created lazily on first
// sight and live for the process lifetime.
type keyLimiters struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

func newKeyLimiters(cfg SecConfig) *keyLimiters {
	rps := cfg.RPS
	if rps <= 0 {
		rps = fallbackRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = fallbackBurst
	}
	return &keyLimiters{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether the caller identified by key may proceed, spending
// one token from that key's bucket.
func (kl *keyLimiters) Allow(key string) bool {
	kl.mu.Lock()
	l, ok := kl.buckets[key]
	if !ok {
		l = rate.NewLimiter(kl.rps, kl.burst)
		kl.buckets[key] = l
	}
	kl.mu.Unlock()
	return l.Allow()
}
