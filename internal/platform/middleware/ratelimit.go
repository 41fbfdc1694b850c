package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the default limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// tokenBucket is a standard refill-on-read token bucket.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *tokenBucket) retryAfter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.refillRate) + 1
}

// clientLimiter keeps one bucket per client key and evicts idle buckets.
type clientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucketEntry
	cfg     RateLimitConfig
}

type bucketEntry struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

const bucketIdleEviction = 10 * time.Minute

func newClientLimiter(cfg RateLimitConfig) *clientLimiter {
	l := &clientLimiter{
		buckets: make(map[string]*bucketEntry),
		cfg:     cfg,
	}
	go l.evictLoop()
	return l
}

func (l *clientLimiter) get(key string) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.buckets[key]
	if !ok {
		entry = &bucketEntry{bucket: newTokenBucket(l.cfg.RequestsPerSecond, l.cfg.BurstSize)}
		l.buckets[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.bucket
}

func (l *clientLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-bucketIdleEviction)
		l.mu.Lock()
		for key, entry := range l.buckets {
			if entry.lastSeen.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit limits requests per client IP with a token bucket. Exceeding
// clients receive 429 with a Retry-After hint.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	limiter := newClientLimiter(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			bucket := limiter.get(c.RealIP())
			if !bucket.allow() {
				c.Response().Header().Set("Retry-After", strconv.Itoa(bucket.retryAfter()))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
