// Package ratelimit provides a keyed token-bucket limiter for the HTTP
// gateway: per-user throttling of API traffic and per-address throttling of
// credential endpoints. Buckets refill lazily on each Allow call, so there
// are no background goroutines, and idle buckets are swept opportunistically
// to bound memory.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key has exhausted its bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// idleEviction is how long a bucket may sit untouched before a sweep drops
// it. A dropped bucket refills to full on the key's next request.
const idleEviction = 10 * time.Minute

// Config configures a Limiter.
type Config struct {
	PerMinute int // Tokens granted per minute. 0 disables the limiter.
	Burst     int // Bucket capacity. Defaults to PerMinute.
}

// Limiter is a keyed token-bucket limiter. Keys are independent: one
// caller cannot exhaust another's quota. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64
}

type bucket struct {
	tokens  float64
	touched time.Time
}

// New creates a Limiter. With PerMinute 0 every Allow succeeds.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.PerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.PerMinute) / 60.0,
		burst:   float64(burst),
	}
}

// Allow consumes one token for key, refilling the bucket for the time
// elapsed since its last use. Returns ErrRateLimited when the bucket is
// empty.
func (l *Limiter) Allow(key string) error {
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) > 0 && len(l.buckets)%1024 == 0 {
			l.sweep(now)
		}
		// A new key starts with a full bucket.
		b = &bucket{tokens: l.burst}
		l.buckets[key] = b
	} else {
		b.tokens += now.Sub(b.touched).Seconds() * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	b.touched = now

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// Reset forgets the bucket for key. Used after a successful sign-in so a
// user who finally typed the right password is not still serving out a
// throttle from earlier attempts.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// sweep drops buckets idle past the eviction window. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.touched) > idleEviction {
			delete(l.buckets, key)
		}
	}
}
