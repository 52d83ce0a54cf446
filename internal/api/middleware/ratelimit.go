// ratelimit.go — ограничение частоты запросов по IP клиента.
//
// Два лимита: общий на все запросы и отдельный на загрузку (POST /upload).
// Лимит "N запросов за окно" реализован token bucket из golang.org/x/time/rate:
// ёмкость N, пополнение N токенов за окно.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
)

// RateLimitConfig — параметры ограничителя.
type RateLimitConfig struct {
	// Requests — запросов за окно на один IP (все маршруты)
	Requests int
	// Uploads — загрузок за окно на один IP
	Uploads int
	// Window — длительность окна
	Window time.Duration
	// Exempt — префиксы путей, которые не ограничиваются (health, metrics)
	Exempt []string
}

// RateLimiter — набор token bucket по IP клиента.
type RateLimiter struct {
	cfg     RateLimitConfig
	general *bucketSet
	uploads *bucketSet
	now     func() time.Time
}

// NewRateLimiter создаёт ограничитель частоты.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		general: newBucketSet(cfg.Requests, cfg.Window),
		uploads: newBucketSet(cfg.Uploads, cfg.Window),
		now:     time.Now,
	}
}

// Middleware возвращает HTTP middleware. Превышение лимита — 429 RATE_LIMITED
// с заголовком Retry-After.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range rl.cfg.Exempt {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ip := ClientIP(r)
			now := rl.now()

			if !rl.general.allow(ip, now, w) {
				rateLimitedTotal.WithLabelValues("general").Inc()
				apierrors.RateLimited(w, "Слишком много запросов, попробуйте позже")
				return
			}
			if r.Method == http.MethodPost && r.URL.Path == "/upload" {
				if !rl.uploads.allow(ip, now, w) {
					rateLimitedTotal.WithLabelValues("upload").Inc()
					apierrors.RateLimited(w, "Слишком много загрузок, попробуйте позже")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Len возвращает количество отслеживаемых IP (общий лимит).
func (rl *RateLimiter) Len() int {
	return rl.general.len()
}

// ClientIP возвращает IP клиента из RemoteAddr.
// Заголовки X-Forwarded-For не учитываются: их может подделать клиент.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// bucketSet — token bucket на каждый ключ. Неактивные ключи удаляются
// не чаще раза в окно.
type bucketSet struct {
	limit  int
	window time.Duration
	every  rate.Limit

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newBucketSet(limit int, window time.Duration) *bucketSet {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &bucketSet{
		limit:   limit,
		window:  window,
		every:   rate.Every(window / time.Duration(limit)),
		buckets: make(map[string]*bucket),
	}
}

// allow расходует токен ключа и выставляет заголовки X-RateLimit-*.
func (bs *bucketSet) allow(key string, now time.Time, w http.ResponseWriter) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if now.Sub(bs.lastSweep) >= bs.window {
		bs.sweep(now)
	}

	b, ok := bs.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(bs.every, bs.limit)}
		bs.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(bs.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !allowed {
		// Время до появления следующего токена
		wait := time.Duration(float64(time.Second) / float64(bs.every))
		h.Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
	}
	return allowed
}

// sweep удаляет ключи, неактивные дольше окна: их bucket уже полон.
func (bs *bucketSet) sweep(now time.Time) {
	for key, b := range bs.buckets {
		if now.Sub(b.lastSeen) >= bs.window {
			delete(bs.buckets, key)
		}
	}
	bs.lastSweep = now
}

func (bs *bucketSet) len() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.buckets)
}
