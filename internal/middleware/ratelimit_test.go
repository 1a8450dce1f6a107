package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, r rate.Limit, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            r,
		Burst:           burst,
		CleanupInterval: time.Minute,
	}, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	t.Cleanup(rl.Stop)
	return rl
}

func doRequest(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/jobs/classroom-sync", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsRequestsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 3)

	calls := 0
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		if w := doRequest(handler, "10.0.0.1:1234"); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if calls != 3 {
		t.Errorf("handler call count = %d, want 3", calls)
	}
}

func TestRateLimiter_Returns429WhenExceeded(t *testing.T) {
	rl := newTestRateLimiter(t, rate.Limit(0.5), 1)

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	doRequest(handler, "10.0.0.1:1234")
	w := doRequest(handler, "10.0.0.1:5678")

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want %q", got, "2")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
}

func TestRateLimiter_IndependentPerClient(t *testing.T) {
	rl := newTestRateLimiter(t, rate.Limit(0.1), 1)

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if w := doRequest(handler, "10.0.0.1:1"); w.Code != http.StatusOK {
		t.Errorf("client1: status = %d", w.Code)
	}
	if w := doRequest(handler, "10.0.0.2:1"); w.Code != http.StatusOK {
		t.Errorf("client2は別枠で許可されるべき: status = %d", w.Code)
	}
	if w := doRequest(handler, "10.0.0.1:2"); w.Code != http.StatusTooManyRequests {
		t.Errorf("client1の2回目は制限されるべき: status = %d", w.Code)
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 1)
	rl.limiterFor("10.0.0.1")
	rl.limiterFor("10.0.0.2")

	rl.mu.Lock()
	rl.limiters["10.0.0.1"].lastAccess = time.Now().Add(-3 * time.Minute)
	rl.mu.Unlock()

	rl.cleanup(time.Now())

	if rl.LimiterCount() != 1 {
		t.Errorf("LimiterCount = %d, want 1", rl.LimiterCount())
	}
}

func TestTriggerRateLimiterConfig(t *testing.T) {
	cfg := TriggerRateLimiterConfig(30)
	if cfg.Rate != rate.Limit(0.5) || cfg.Burst != 30 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if def := TriggerRateLimiterConfig(0); def.Burst != 30 {
		t.Errorf("0以下はデフォルト30/分: %+v", def)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:54321"
	if got := clientKey(req); got != "192.0.2.1" {
		t.Errorf("clientKey = %q, want 192.0.2.1", got)
	}
	req.RemoteAddr = "192.0.2.1"
	if got := clientKey(req); got != "192.0.2.1" {
		t.Errorf("ポートなしの場合はそのまま: %q", got)
	}
}
