package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to DeviceKey.
	KeyFunc func(*http.Request) string
	// Limiter counts requests. Defaults to an in-process sliding window.
	Limiter Limiter
}

// Limiter decides whether another request for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (remaining int, resetAt time.Time, err error)
}

// errLimited is returned by a Limiter when the key is over its budget.
type errLimited struct{}

func (errLimited) Error() string { return "rate limit exceeded" }

// ErrLimited reports that a request exceeded the limit.
var ErrLimited error = errLimited{}

// RateLimit rejects clients that exceed cfg.Max requests per cfg.Window
// with 429. Every response carries the X-RateLimit-* headers. Limiter
// failures let the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DeviceKey
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewMemoryLimiter(cfg.Max, cfg.Window)
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r), time.Now())
			if err != nil && !errors.Is(err, ErrLimited) {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			wait := math.Ceil(max(time.Until(resetAt), 0).Seconds())
			h.Set("Retry-After", strconv.Itoa(int(wait)))
			writeError(w, http.StatusTooManyRequests, ErrLimited.Error())
		})
	}
}

// RateLimitWithCleanup is RateLimit with an in-process limiter whose stale
// entries are evicted until ctx ends.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		m := NewMemoryLimiter(cfg.Max, cfg.Window)
		m.StartCleanup(ctx)
		cfg.Limiter = m
	}
	return RateLimit(cfg)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// DeviceKey limits per device when the client sends X-Device-ID and per
// client IP otherwise.
func DeviceKey(r *http.Request) string {
	if id := r.Header.Get("X-Device-ID"); id != "" {
		return "device:" + id
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MemoryLimiter is a sliding window limiter kept in process memory. The
// previous window's count is weighted by how much of it still overlaps.
type MemoryLimiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*slidingWindow
}

type slidingWindow struct {
	start time.Time
	prev  float64
	curr  float64
}

// NewMemoryLimiter returns a MemoryLimiter.
func NewMemoryLimiter(maxRequests int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: maxRequests, window: window, windows: make(map[string]*slidingWindow)}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sw, ok := m.windows[key]
	if !ok {
		sw = &slidingWindow{start: now.Truncate(m.window)}
		m.windows[key] = sw
	}
	switch elapsed := now.Sub(sw.start); {
	case elapsed >= 2*m.window:
		sw.start, sw.prev, sw.curr = now.Truncate(m.window), 0, 0
	case elapsed >= m.window:
		sw.start, sw.prev, sw.curr = sw.start.Add(m.window), sw.curr, 0
	}

	overlap := 1 - now.Sub(sw.start).Seconds()/m.window.Seconds()
	used := sw.prev*max(overlap, 0) + sw.curr
	resetAt := sw.start.Add(m.window)
	if used >= float64(m.max) {
		return 0, resetAt, ErrLimited
	}
	sw.curr++
	return max(int(float64(m.max)-used-1), 0), resetAt, nil
}

// StartCleanup evicts idle keys every two windows until ctx ends.
func (m *MemoryLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * m.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.mu.Lock()
				for key, sw := range m.windows {
					if now.Sub(sw.start) >= 2*m.window {
						delete(m.windows, key)
					}
				}
				m.mu.Unlock()
			}
		}
	}()
}

// RedisLimiter is a fixed window limiter shared by every API instance.
type RedisLimiter struct {
	client redis.UniversalClient
	max    int
	window time.Duration
}

// NewRedisLimiter returns a RedisLimiter.
func NewRedisLimiter(client redis.UniversalClient, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: maxRequests, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (int, time.Time, error) {
	start := now.Truncate(l.window)
	resetAt := start.Add(l.window)
	k := "zaya:ratelimit:" + key + ":" + strconv.FormatInt(start.Unix(), 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireAt(ctx, k, resetAt.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, resetAt, err
	}

	n := int(incr.Val())
	if n > l.max {
		return 0, resetAt, ErrLimited
	}
	return l.max - n, resetAt, nil
}
