package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestAllowWindow(t *testing.T) {
	c := &clock{t: time.Date(2024, 10, 16, 12, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 2}, c.now)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests rejected")
	}
	if rl.Allow("a") {
		t.Error("third request allowed")
	}
	if !rl.Allow("b") {
		t.Error("other client rejected")
	}

	// Retrying while limited does not extend the window.
	c.t = c.t.Add(59 * time.Second)
	if rl.Allow("a") {
		t.Error("request inside window allowed")
	}
	c.t = c.t.Add(time.Second)
	if !rl.Allow("a") {
		t.Error("request after window rejected")
	}
	if got := rl.GetMetrics().TotalHits; got != 2 {
		t.Errorf("TotalHits = %d, want 2", got)
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	c := &clock{t: time.Date(2024, 10, 16, 12, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 5}, c.now)
	rl.Allow("old")
	c.t = c.t.Add(11 * time.Minute)
	rl.Allow("new")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestMiddleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1})
	defer rl.Stop()

	h := rl.Middleware(func(*http.Request) string { return "c" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	codes := []int{http.StatusNoContent, http.StatusTooManyRequests}
	for i, want := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != want {
			t.Errorf("request %d: code = %d, want %d", i, rec.Code, want)
		}
		if want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
			t.Error("Retry-After missing")
		}
	}
	rl.Stop() // idempotent
}
