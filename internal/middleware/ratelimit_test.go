package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowWithinLimit(t *testing.T) {
	rl := NewRateLimiter()

	// The resend-OTP route allows 10 hits a minute per client.
	for i := 0; i < 10; i++ {
		if !rl.Allow("203.0.113.9", 10, time.Minute) {
			t.Fatalf("hit %d should be allowed", i+1)
		}
	}
	if rl.Allow("203.0.113.9", 10, time.Minute) {
		t.Error("11th hit should be denied")
	}

	// A different client is unaffected.
	if !rl.Allow("198.51.100.4", 10, time.Minute) {
		t.Error("other client should not share the window")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		rl.Allow("203.0.113.9", 3, 10*time.Millisecond)
	}
	if rl.Allow("203.0.113.9", 3, 10*time.Millisecond) {
		t.Error("should be denied within the window")
	}

	time.Sleep(15 * time.Millisecond)

	if !rl.Allow("203.0.113.9", 3, 10*time.Millisecond) {
		t.Error("should be allowed after the window resets")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()

	rl.Allow("expired", 5, 10*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	rl.Allow("active", 5, time.Minute)

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.windows["expired"]; ok {
		t.Error("expired window should have been dropped")
	}
	if _, ok := rl.windows["active"]; !ok {
		t.Error("active window should survive cleanup")
	}
}

func TestRateLimitMiddlewareEnvelope(t *testing.T) {
	rl := NewRateLimiter()
	handler := RateLimit(rl, RealIP, 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/auth/resend_otp", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/api/auth/resend_otp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd request: status = %d, want 429", rec.Code)
	}

	// Rejections carry the standard error envelope, not a text/plain body.
	var body struct {
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
		Status  int      `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	if body.Status != http.StatusTooManyRequests || len(body.Errors) == 0 {
		t.Errorf("429 envelope = %+v", body)
	}
}

func TestRateLimitKeyedByRealIP(t *testing.T) {
	rl := NewRateLimiter()
	handler := RateLimit(rl, RealIP, 1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Two mobile clients behind the same proxy hop are distinct keys.
	for _, ip := range []string{"203.0.113.9", "198.51.100.4"} {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.Header.Set("CF-Connecting-IP", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("first request from %s: status = %d, want 200", ip, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.Header.Set("CF-Connecting-IP", "203.0.113.9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("repeat from same CF ip: status = %d, want 429", rec.Code)
	}
}

func TestRealIPPrecedence(t *testing.T) {
	cases := []struct {
		name   string
		cf, ff string
		remote string
		want   string
	}{
		{"cloudflare wins", "203.0.113.9", "198.51.100.4", "10.0.0.1:55555", "203.0.113.9"},
		{"first forwarded hop", "", "198.51.100.4, 10.0.0.2", "10.0.0.1:55555", "198.51.100.4"},
		{"remote addr fallback", "", "", "10.0.0.1:55555", "10.0.0.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remote
			if tc.cf != "" {
				req.Header.Set("CF-Connecting-IP", tc.cf)
			}
			if tc.ff != "" {
				req.Header.Set("X-Forwarded-For", tc.ff)
			}
			if got := RealIP(req); got != tc.want {
				t.Errorf("RealIP = %q, want %q", got, tc.want)
			}
		})
	}
}
