package ratelimit

import (
	"sync"
	"time"
)

// Config holds per-call-site limiter settings.
type Config struct {
	Points int           // bucket capacity per window
	Window time.Duration // refill period
	Block  time.Duration // penalty once the bucket is exhausted
}

// Result reports the outcome of a Consume call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // remaining block time when not allowed
}

// Limiter is a keyed rate limiter. The in-memory implementation below is
// per-process; call sites depend on this interface so a shared-store
// implementation can replace it without changes.
type Limiter interface {
	Consume(key string, cost int) Result
}

type bucket struct {
	remaining    int
	windowStart  time.Time
	blockedUntil time.Time
}

// MemoryLimiter is a token-bucket limiter with a block-duration penalty.
// Exhausting a bucket blocks the key for Config.Block regardless of window
// refill; consuming while blocked never touches the refill clock.
type MemoryLimiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter with the given settings.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Consume takes cost points from the key's bucket. It never blocks the
// caller; concurrent calls against the same key serialize on the mutex.
func (l *MemoryLimiter) Consume(key string, cost int) Result {
	if cost <= 0 {
		cost = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{remaining: l.cfg.Points, windowStart: now}
		l.buckets[key] = b
	}

	// Blocked keys are rejected immediately with the remaining penalty.
	if now.Before(b.blockedUntil) {
		return Result{Allowed: false, Remaining: 0, RetryAfter: b.blockedUntil.Sub(now)}
	}

	// Refill once the window has fully aged out.
	if now.Sub(b.windowStart) >= l.cfg.Window {
		b.remaining = l.cfg.Points
		b.windowStart = now
	}

	if cost > b.remaining {
		b.remaining = 0
		b.blockedUntil = now.Add(l.cfg.Block)
		return Result{Allowed: false, Remaining: 0, RetryAfter: l.cfg.Block}
	}

	b.remaining -= cost
	return Result{Allowed: true, Remaining: b.remaining}
}

// Sweep drops buckets that are neither blocked nor inside an active window.
// Called periodically by the background cleanup manager to bound memory.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0

	for key, b := range l.buckets {
		idle := now.Sub(b.windowStart) >= l.cfg.Window
		if idle && !now.Before(b.blockedUntil) {
			delete(l.buckets, key)
			removed++
		}
	}

	return removed
}

// Size returns the number of tracked keys.
func (l *MemoryLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
