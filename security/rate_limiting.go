package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// Limiter counts hits per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter shares its counters across instances.
type RedisLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(redisClient *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: redisClient, limit: int64(limit), window: window}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := r.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, redisKey, r.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= r.limit, nil
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the single-instance counterpart of RedisLimiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*window
}

func NewMemoryLimiter(limit int, d time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: d, now: time.Now, windows: make(map[string]*window)}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(m.window)}
		m.windows[key] = w
		m.sweep(now)
	}
	w.count++
	return w.count <= m.limit, nil
}

// sweep drops expired windows so idle clients do not accumulate.
func (m *MemoryLimiter) sweep(now time.Time) {
	if len(m.windows) < 1024 {
		return
	}
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}

// ReservationRateLimit throttles reservation creation per client IP and
// rejects obvious automated clients. Limiter errors fail open.
func ReservationRateLimit(l Limiter) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if IsSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		}

		ip := e.RealIP()
		allowed, err := l.Allow(e.Request.Context(), "reservations:"+ip)
		if err != nil {
			slog.Warn("Rate limiter unavailable", "error", err, "ip", ip)
			return e.Next()
		}
		if !allowed {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}
		return e.Next()
	}
}

func IsSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
