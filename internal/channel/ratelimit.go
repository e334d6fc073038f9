package channel

import (
	"sync"
	"time"
)

const (
	defaultRateBurst     = 5
	defaultRatePerMinute = 30.0
	limiterIdleTTL       = 10 * time.Minute
)

// bucket is a token bucket for one sender.
type bucket struct {
	tokens   float64
	lastTime time.Time
}

// Limiter throttles turns per sender (Telegram chat, API merchant).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     float64
	rate    float64 // tokens per second
	now     func() time.Time
	swept   time.Time
}

func NewLimiter(maxBurst int, ratePerMinute float64) *Limiter {
	if maxBurst <= 0 {
		maxBurst = defaultRateBurst
	}
	if ratePerMinute <= 0 {
		ratePerMinute = defaultRatePerMinute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		max:     float64(maxBurst),
		rate:    ratePerMinute / 60.0,
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket and reports whether one was
// available. A nil Limiter allows everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.max, lastTime: now}
		l.buckets[key] = b
	}
	b.tokens += now.Sub(b.lastTime).Seconds() * l.rate
	if b.tokens > l.max {
		b.tokens = l.max
	}
	b.lastTime = now

	if b.tokens < 1.0 {
		return false
	}
	b.tokens -= 1.0
	return true
}

// sweep drops buckets idle long enough to have refilled completely.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < limiterIdleTTL {
		return
	}
	l.swept = now
	for k, b := range l.buckets {
		if now.Sub(b.lastTime) >= limiterIdleTTL {
			delete(l.buckets, k)
		}
	}
}
