package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RealIP resolves the client address the limiter keys on. The API sits behind
// Cloudflare, so CF-Connecting-IP wins, then the first hop of X-Forwarded-For,
// then RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientWindow is one caller's fixed window: hits so far and when it resets.
type clientWindow struct {
	hits    int
	resetAt time.Time
}

// RateLimiter tracks per-key fixed windows in memory. It guards the public
// auth and OTP routes, where a single client hammering resends is the threat
// model, so per-process state is enough.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*clientWindow
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*clientWindow),
	}
}

// Allow records a hit against key and reports whether it stays within limit
// for the current window. A fresh or expired window always admits the hit.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cw, ok := rl.windows[key]
	if !ok || now.After(cw.resetAt) {
		rl.windows[key] = &clientWindow{hits: 1, resetAt: now.Add(window)}
		return true
	}
	cw.hits++
	return cw.hits <= limit
}

// Cleanup drops windows that have already reset. Run periodically so the map
// does not grow with every IP that ever touched a public route.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, cw := range rl.windows {
		if now.After(cw.resetAt) {
			delete(rl.windows, key)
		}
	}
}

// RateLimit returns middleware that limits requests per keyFunc result. The
// rejection body uses the same JSON envelope as every other error response.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(keyFunc(r), limit, window) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"data":    nil,
					"message": "too many requests, slow down",
					"errors":  []string{"too many requests, slow down"},
					"status":  http.StatusTooManyRequests,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
