// Per-IP rate limiting for endpoints with heavy payloads. Fixed window,
// in memory only.
package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// rateLimiter caps requests per client IP over a fixed window.
type rateLimiter struct {
	mu     sync.Mutex
	seen   map[string]*windowCount
	max    int
	window time.Duration
}

type windowCount struct {
	count   int
	started time.Time
}

// newRateLimiter allows max requests per window per IP.
func newRateLimiter(max int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		seen:   make(map[string]*windowCount),
		max:    max,
		window: window,
	}
	go func() {
		for {
			time.Sleep(time.Hour)
			rl.sweep()
		}
	}()
	return rl
}

// allow records a request from ip and reports whether it fits the window.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	wc, ok := rl.seen[ip]
	if !ok || now.Sub(wc.started) >= rl.window {
		rl.seen[ip] = &windowCount{count: 1, started: now}
		return true
	}
	if wc.count >= rl.max {
		return false
	}
	wc.count++
	return true
}

// retryAfter returns seconds until the window resets for ip.
func (rl *rateLimiter) retryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	wc, ok := rl.seen[ip]
	if !ok {
		return 0
	}
	remaining := rl.window - time.Since(wc.started)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, wc := range rl.seen {
		if now.Sub(wc.started) > 2*rl.window {
			delete(rl.seen, ip)
		}
	}
}

// clientIP extracts the caller's IP, preferring X-Forwarded-For when a
// proxy sits in front.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// withRateLimit wraps a handler with per-IP limiting. Returns 429 with a
// Retry-After header when exceeded.
func withRateLimit(rl *rateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter(ip)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
