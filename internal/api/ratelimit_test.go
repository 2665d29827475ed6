package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		remote string
		xff    string
		want   string
	}{
		{remote: "10.0.0.1:5432", want: "10.0.0.1"},
		{remote: "[::1]:8080", want: "::1"},
		{remote: "10.0.0.1:5432", xff: "203.0.113.9", want: "203.0.113.9"},
		{remote: "10.0.0.1:5432", xff: "203.0.113.9, 10.0.0.2", want: "203.0.113.9"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		if tc.xff != "" {
			req.Header.Set("X-Forwarded-For", tc.xff)
		}
		if got := clientIP(req); got != tc.want {
			t.Fatalf("clientIP(remote=%q, xff=%q) = %q, want %q", tc.remote, tc.xff, got, tc.want)
		}
	}
}

func TestRateLimiterAllowsThenBlocks(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests must pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request within the window must be blocked")
	}
	// Other callers are unaffected.
	if !rl.Allow("b") {
		t.Fatal("independent caller blocked")
	}
	if rl.RetryAfter("a") <= 0 {
		t.Fatal("blocked caller needs a retry-after hint")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	handler := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("429 without Retry-After header")
	}
}
