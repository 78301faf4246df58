package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rabiesresq/rabiesresq/internal/platform/auth"
)

// RateLimitConfig sets the per-caller token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
	}
}

// bucket refills continuously up to the burst size.
type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// take spends one token at now. When none is left it also returns the whole
// seconds until the next token.
func (b *bucket) take(now time.Time, rate, burst float64) (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(burst, b.tokens+elapsed*rate)
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if rate <= 0 {
		return false, 1
	}
	return false, max(1, int(math.Ceil((1-b.tokens)/rate)))
}

type limiter struct {
	cfg     RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{cfg: cfg, now: time.Now, buckets: make(map[string]*bucket)}
}

func (l *limiter) bucketFor(key string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BurstSize), last: now}
		l.buckets[key] = b
	}
	return b
}

func (l *limiter) allow(key string) (bool, int) {
	now := l.now()
	return l.bucketFor(key, now).take(now, l.cfg.RequestsPerSecond, float64(l.cfg.BurstSize))
}

// callerKey picks the bucket for a request. Patients share one bucket per
// patient record and staff one per clinic and account. Anonymous callers fall
// back to the client IP, so a clinic kiosk behind one address only throttles
// the unauthenticated traffic.
func callerKey(c echo.Context) string {
	a, ok := auth.ActorFromContext(c.Request().Context())
	switch {
	case !ok || a.ID == "":
		return "ip:" + c.RealIP()
	case a.Role == auth.RolePatient && a.PatientID > 0:
		return "patient:" + strconv.FormatInt(a.PatientID, 10)
	case a.ClinicID > 0:
		return "clinic:" + strconv.FormatInt(a.ClinicID, 10) + ":" + a.ID
	default:
		return string(a.Role) + ":" + a.ID
	}
}

// RateLimit runs after authentication so callers are keyed by identity.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	l := newLimiter(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			ok, retryAfter := l.allow(callerKey(c))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests. Please slow down.")
			}
			return next(c)
		}
	}
}
