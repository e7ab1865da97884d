package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bkp4113/claim-app/internal/platform/auth"
)

const msgTooManyRequests = "Too Many Requests."

// Decision is a limiter verdict for one request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// tokenBucket refills continuously at refillRate tokens per second.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: now,
	}
}

func (b *tokenBucket) take(now time.Time) (bool, float64, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.maxTokens, b.tokens+elapsed*b.refillRate)
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, b.tokens, 0
	}
	wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
	return false, b.tokens, wait
}

// MemoryLimiter keeps one token bucket per key in process memory. Each
// replica enforces its own budget.
type MemoryLimiter struct {
	perMinute int
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// NewMemoryLimiter allows perMinute requests per key per minute with a burst
// of the same size.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	return &MemoryLimiter{
		perMinute: perMinute,
		now:       time.Now,
		buckets:   make(map[string]*tokenBucket),
	}
}

func (l *MemoryLimiter) bucket(key string, now time.Time) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = newTokenBucket(float64(l.perMinute)/60, l.perMinute, now)
		l.buckets[key] = b
	}
	return b
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	ok, left, wait := l.bucket(key, now).take(now)
	return Decision{
		Allowed:    ok,
		Limit:      l.perMinute,
		Remaining:  int(left),
		RetryAfter: wait,
	}, nil
}

// CallerKey identifies the caller by authenticated subject, falling back to
// the client IP.
func CallerKey(c echo.Context) string {
	if id, ok := auth.IdentityFromContext(c.Request().Context()); ok && id.Subject != "" {
		return id.TenantID + ":" + id.Subject
	}
	return "ip:" + c.RealIP()
}

// RateLimit rejects callers over budget with 429 and Retry-After. A limiter
// backend error lets the request through.
func RateLimit(limiter Limiter, keyFunc func(echo.Context) string) echo.MiddlewareFunc {
	if keyFunc == nil {
		keyFunc = CallerKey
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			d, err := limiter.Allow(ctx, keyFunc(c))
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				return echo.NewHTTPError(http.StatusTooManyRequests, msgTooManyRequests)
			}
			return next(c)
		}
	}
}
