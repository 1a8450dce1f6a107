package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/studysync/internal/analytics"
	"github.com/hitoshi/studysync/internal/auth"
	"github.com/hitoshi/studysync/internal/classroom"
	"github.com/hitoshi/studysync/internal/config"
	"github.com/hitoshi/studysync/internal/metrics"
	"github.com/hitoshi/studysync/internal/notify"
	"github.com/hitoshi/studysync/internal/repository"
	"github.com/hitoshi/studysync/internal/security"
	"github.com/hitoshi/studysync/internal/worker/cleanup"
	"github.com/hitoshi/studysync/internal/worker/coursesync"
	"github.com/hitoshi/studysync/internal/worker/report"
	"github.com/hitoshi/studysync/internal/worker/runner"
)

// pipeline はserve・worker・ワンショット実行で共有するジョブ一式。
type pipeline struct {
	runner    *runner.Runner
	engine    *coursesync.Engine
	generator *report.Generator
	pruner    *cleanup.JobRunPruner
	location  *time.Location
}

// newPipeline はDB接続と設定から全依存関係をワイヤリングする。
func newPipeline(cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector, logger *slog.Logger) (*pipeline, error) {
	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid report timezone %q: %w", cfg.ReportTimezone, err)
	}

	// 1. リポジトリの初期化
	credRepo := repository.NewPostgresCredentialRepo(db)
	courseRepo := repository.NewPostgresCourseRepo(db)
	workRepo := repository.NewPostgresCourseWorkRepo(db)
	linkRepo := repository.NewPostgresLinkRepo(db)
	activityRepo := repository.NewPostgresActivityRepo(db)
	reportRepo := repository.NewPostgresReportRepo(db)
	contactRepo := repository.NewPostgresContactRepo(db)
	jobRunRepo := repository.NewPostgresJobRunRepo(db)

	// 2. 外部クラスルーム連携
	refresher := auth.NewTokenRefresher(auth.TokenRefresherConfig{
		ClientID:     cfg.ClassroomClientID,
		ClientSecret: cfg.ClassroomClientSecret,
		TokenURL:     cfg.ClassroomTokenURL,
		Timeout:      cfg.ClassroomTimeout,
	})
	client := classroom.NewClient(&http.Client{}, classroom.ClientConfig{
		BaseURL:  cfg.ClassroomAPIBaseURL,
		PageSize: cfg.ClassroomPageSize,
		MaxPages: cfg.ClassroomMaxPages,
		Timeout:  cfg.ClassroomTimeout,
		Rate:     cfg.ClassroomRateLimit,
		Burst:    cfg.ClassroomRateBurst,
	}, logger)
	mapper := classroom.NewMapper(security.NewDescriptionSanitizer())

	engine := coursesync.NewEngine(
		credRepo, courseRepo, workRepo,
		refresher, client, mapper,
		collector, logger, cfg.SyncMaxConcurrent,
	)

	// 3. レポート生成と通知
	notifier := notify.New(notify.EmailConfig{
		APIKey:    cfg.SendgridAPIKey,
		Host:      cfg.SendgridHost,
		FromEmail: cfg.NotifyFromEmail,
		FromName:  cfg.NotifyFromName,
		Timeout:   cfg.NotifyTimeout,
		Location:  loc,
	}, contactRepo, logger)
	aggregator := analytics.NewAggregator(activityRepo, loc)

	generator := report.NewGenerator(
		linkRepo, reportRepo, aggregator, notifier,
		collector, logger, cfg.ReportDedupWindow, cfg.ReportMaxConcurrent,
	)

	// 4. ジョブ実行の統括と実行履歴のクリーンアップ
	jobRunner := runner.New(repository.NewPostgresJobLock(db, logger), jobRunRepo, collector, logger)
	pruner := cleanup.NewJobRunPruner(db, logger, cfg.JobRunRetentionDays)

	return &pipeline{
		runner:    jobRunner,
		engine:    engine,
		generator: generator,
		pruner:    pruner,
		location:  loc,
	}, nil
}
