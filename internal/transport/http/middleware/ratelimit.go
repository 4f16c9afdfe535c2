package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/shared"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

type rateBucket struct {
	count int
	reset time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	clients map[string]*rateBucket
}

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(rl)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HeavyMutationRateLimit applies a tighter per-actor token bucket to bulk
// writes: imports, sample generation and record deletion. A quarter of the
// base budget is available as a burst and refills evenly over the window.
func HeavyMutationRateLimit(baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	heavy := newTokenLimiter(max(baseLimit/4, 1), window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHeavyMutation(r) && !heavy.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type tokenLimiter struct {
	mu      sync.Mutex
	burst   int
	every   rate.Limit
	clients map[string]*rate.Limiter
}

func newTokenLimiter(burst int, window time.Duration) *tokenLimiter {
	return &tokenLimiter{
		burst:   burst,
		every:   rate.Every(window / time.Duration(burst)),
		clients: map[string]*rate.Limiter{},
	}
}

func (tl *tokenLimiter) limiter(key string) *rate.Limiter {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	lim, ok := tl.clients[key]
	if !ok {
		if len(tl.clients) >= 10000 {
			for k, l := range tl.clients {
				if l.Tokens() >= float64(tl.burst) {
					delete(tl.clients, k)
				}
			}
		}
		lim = rate.NewLimiter(tl.every, tl.burst)
		tl.clients[key] = lim
	}
	return lim
}

func (tl *tokenLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	key := actorOrIPKey(r)
	res := tl.limiter(key).Reserve()
	delay := res.Delay()
	if delay == 0 {
		return true
	}
	res.Cancel()

	retry := int(math.Ceil(delay.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
	slog.Warn("heavy mutation rate limit exceeded",
		"key", key,
		"path", r.URL.Path,
		"method", r.Method,
		"burst", tl.burst,
	)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many bulk changes, retry later", GetRequestID(r.Context()))
	return false
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.TenantID + ":" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	return shared.ClientIP(r)
}

func newRateLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc) *rateLimiter {
	if keyFn == nil {
		keyFn = actorOrIPKey
	}
	return &rateLimiter{
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
		clients: map[string]*rateBucket{},
	}
}

func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.limit <= 0 {
		return true
	}

	key := rl.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	now := time.Now()

	rl.mu.Lock()
	bucket, ok := rl.clients[key]
	if !ok || now.After(bucket.reset) {
		bucket = &rateBucket{reset: now.Add(rl.window)}
		rl.clients[key] = bucket
	}
	bucket.count++
	remaining := rl.limit - bucket.count
	resetIn := durationSeconds(bucket.reset.Sub(now))
	overLimit := bucket.count > rl.limit
	rl.sweepLocked(now)
	rl.mu.Unlock()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetIn))

	if overLimit {
		w.Header().Set("Retry-After", strconv.Itoa(max(resetIn, 1)))
		slog.Warn("rate limit exceeded",
			"key", key,
			"path", r.URL.Path,
			"method", r.Method,
			"limit", rl.limit,
			"windowSec", int(rl.window.Seconds()),
		)
		api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
		return false
	}
	return true
}

// sweepLocked drops expired buckets once the map grows large.
func (rl *rateLimiter) sweepLocked(now time.Time) {
	if len(rl.clients) < 10000 {
		return
	}
	for key, bucket := range rl.clients {
		if now.After(bucket.reset) {
			delete(rl.clients, key)
		}
	}
}

func durationSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	seconds := int(d.Seconds())
	if seconds <= 0 {
		return 1
	}
	return seconds
}

func isHeavyMutation(r *http.Request) bool {
	path := strings.TrimPrefix(strings.TrimSpace(r.URL.Path), "/api/v1")
	if !strings.HasPrefix(path, "/payroll/sheets/") {
		return false
	}
	switch r.Method {
	case http.MethodPost:
		return strings.HasSuffix(path, "/import") || strings.HasSuffix(path, "/records/sample")
	case http.MethodDelete:
		return strings.Contains(path, "/records/")
	}
	return false
}
