package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/studysync/internal/middleware"
	"github.com/hitoshi/studysync/internal/worker/runner"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	TriggerSecret string
	RateLimiter   *middleware.RateLimiter

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ジョブ
	JobRunner         JobRunner
	Syncer            runner.Syncer
	ReportGenerator   runner.ReportGenerator
	DefaultWindowDays int
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders
//
// /jobs/* にはさらに TriggerAuth → RateLimit を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := newBaseRouter(deps.Logger, deps.HealthChecker, deps.MetricsHandler)

	jobHandler := NewJobHandler(deps.JobRunner, deps.Syncer, deps.ReportGenerator, deps.DefaultWindowDays, deps.Logger)

	// --- トリガーシークレットが必要なルート ---
	r.Route("/jobs", func(r chi.Router) {
		r.Use(middleware.NewTriggerAuthMiddleware(deps.TriggerSecret, deps.Logger))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Post("/classroom-sync", jobHandler.TriggerClassroomSync)
		r.Post("/progress-reports", jobHandler.TriggerProgressReports)
	})

	return r
}

// NewOpsRouter は /health と /metrics のみを公開するルーターを返す。
// ワーカーモードでスケジュール実行の監視に使用する。
func NewOpsRouter(logger *slog.Logger, checker HealthChecker, metricsHandler http.Handler) http.Handler {
	return newBaseRouter(logger, checker, metricsHandler)
}

func newBaseRouter(logger *slog.Logger, checker HealthChecker, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// --- 認証不要のルート ---
	healthHandler := NewHealthHandler(checker, logger)
	r.Get("/health", healthHandler.Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}
