package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(rate float64, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(rate, burst)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	rl, clock := newTestLimiter(1, 2)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if rl.Allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("clients must have separate buckets")
	}

	clock.t = clock.t.Add(1500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("expected a token after refill")
	}
	if rl.Allow("a") {
		t.Fatal("refill must not exceed elapsed time")
	}
}

func TestRateLimiterEvict(t *testing.T) {
	rl, clock := newTestLimiter(1, 1)
	rl.Allow("old")
	clock.t = clock.t.Add(20 * time.Minute)
	rl.Allow("fresh")

	if n := rl.Evict(clock.t.Add(-10 * time.Minute)); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Fatal("fresh bucket must survive")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(0.5, 1)
	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.RemoteAddr = "203.0.113.7:5151"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
}
