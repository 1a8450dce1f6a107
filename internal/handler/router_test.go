package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/studysync/internal/metrics"
	"github.com/hitoshi/studysync/internal/middleware"
	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/worker/runner"
	"github.com/prometheus/client_golang/prometheus"
)

const testTriggerSecret = "s3cret-trigger"

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	if deps.TriggerSecret == "" {
		deps.TriggerSecret = testTriggerSecret
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = &mockHealthChecker{}
	}
	if deps.JobRunner == nil {
		deps.JobRunner = runner.New(nil, nil, nil, deps.Logger)
	}
	if deps.Syncer == nil {
		deps.Syncer = &mockSyncer{}
	}
	if deps.ReportGenerator == nil {
		deps.ReportGenerator = &mockReportGenerator{}
	}
	return NewRouter(deps)
}

func TestRouter_Health_OK(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s, want status ok", w.Body.String())
	}
}

func TestRouter_Health_DatabaseDown_Returns503(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		HealthChecker: &mockHealthChecker{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.RecordAccountSynced()

	router := newTestRouter(t, &RouterDeps{MetricsHandler: metrics.Handler(reg)})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "studysync_") {
		t.Errorf("GET /metrics body should contain studysync metrics: %s", w.Body.String())
	}
}

func TestRouter_Jobs_WithoutSecret_Returns401(t *testing.T) {
	syncer := &mockSyncer{}
	router := newTestRouter(t, &RouterDeps{Syncer: syncer})

	req := httptest.NewRequest(http.MethodPost, "/jobs/classroom-sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if syncer.calls != 0 {
		t.Errorf("SyncAll calls = %d, want 0", syncer.calls)
	}
}

func TestRouter_Jobs_WrongSecret_Returns401(t *testing.T) {
	gen := &mockReportGenerator{}
	router := newTestRouter(t, &RouterDeps{ReportGenerator: gen})

	req := httptest.NewRequest(http.MethodPost, "/jobs/progress-reports", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if gen.calls != 0 {
		t.Errorf("GenerateAll calls = %d, want 0", gen.calls)
	}
}

func TestRouter_Jobs_BearerSecret_RunsJob(t *testing.T) {
	syncer := &mockSyncer{summary: model.SyncRunSummary{SyncedCount: 1, TotalCount: 1, Errors: []model.AccountError{}}}
	router := newTestRouter(t, &RouterDeps{Syncer: syncer})

	req := httptest.NewRequest(http.MethodPost, "/jobs/classroom-sync", nil)
	req.Header.Set("Authorization", "Bearer "+testTriggerSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	if syncer.calls != 1 {
		t.Errorf("SyncAll calls = %d, want 1", syncer.calls)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("セキュリティヘッダーが設定されていない")
	}
}

func TestRouter_Jobs_HeaderSecret_RunsJob(t *testing.T) {
	gen := &mockReportGenerator{}
	router := newTestRouter(t, &RouterDeps{ReportGenerator: gen, DefaultWindowDays: 7})

	req := httptest.NewRequest(http.MethodPost, "/jobs/progress-reports?window_days=3", nil)
	req.Header.Set(middleware.TriggerSecretHeader, testTriggerSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	if gen.windowDays != 3 {
		t.Errorf("windowDays = %d, want %d", gen.windowDays, 3)
	}
}

func TestRouter_Jobs_GetNotAllowed(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/jobs/classroom-sync", nil)
	req.Header.Set("Authorization", "Bearer "+testTriggerSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestRouter_Jobs_RateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.TriggerRateLimiterConfig(1), discardLogger())
	t.Cleanup(rl.Stop)

	syncer := &mockSyncer{}
	router := newTestRouter(t, &RouterDeps{Syncer: syncer, RateLimiter: rl})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/jobs/classroom-sync", nil)
		req.Header.Set("Authorization", "Bearer "+testTriggerSecret)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("1回目 status = %d, want %d", code, http.StatusOK)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("2回目 status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if syncer.calls != 1 {
		t.Errorf("SyncAll calls = %d, want 1", syncer.calls)
	}
}

func TestRouter_Jobs_UnknownJob_Returns404(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/unknown", nil)
	req.Header.Set("Authorization", "Bearer "+testTriggerSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestOpsRouter_ExposesHealthAndMetricsOnly(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordReportGenerated()
	router := NewOpsRouter(discardLogger(), &mockHealthChecker{}, metrics.Handler(reg))

	for _, tt := range []struct {
		method string
		path   string
		want   int
	}{
		{method: http.MethodGet, path: "/health", want: http.StatusOK},
		{method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{method: http.MethodPost, path: "/jobs/classroom-sync", want: http.StatusNotFound},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.Header.Set("Authorization", "Bearer "+testTriggerSecret)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != tt.want {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Code, tt.want)
		}
	}
}
