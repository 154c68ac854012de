// Package ratelimit provides per-client token bucket rate limiting.
package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/urlverifier/internal/middleware/realip"
)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	// SubmitsPerMin bounds verification submissions separately; each one
	// signs and sends a transaction.
	SubmitsPerMin  int
	CleanupMinutes int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
}

// New creates a Limiter allowing perMin requests per minute per key.
// Buckets unused for idle are evicted in the background until Stop.
func New(perMin, burst int, idle time.Duration) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(perMin) / 60.0),
		burst:   burst,
		idle:    idle,
		stop:    make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

// Stop ends background eviction.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evict(time.Now().Add(-l.idle))
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evict(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Allow consumes a token for key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.limiter.Allow()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// retryAfter is the time for one token to refill, in whole seconds.
func (l *Limiter) retryAfter() int {
	if l.limit <= 0 {
		return 60
	}
	return int(math.Ceil(1 / float64(l.limit)))
}

var probePaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// Handler rejects requests whose client has no tokens left.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if probePaths[r.URL.Path] || l.Allow(realip.GetClientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "Too many requests. Please try again later.",
			},
		})
	})
}

func passthrough(next http.Handler) http.Handler { return next }

// Middleware limits all requests per client. The limiter lives for the
// lifetime of the process.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RequestsPerMin <= 0 {
		return passthrough
	}
	return New(cfg.RequestsPerMin, cfg.BurstSize, time.Duration(cfg.CleanupMinutes)*time.Minute).Handler
}

// SubmitMiddleware limits verification submissions per client.
func SubmitMiddleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.SubmitsPerMin <= 0 {
		return passthrough
	}
	return New(cfg.SubmitsPerMin, cfg.SubmitsPerMin, time.Duration(cfg.CleanupMinutes)*time.Minute).Handler
}
