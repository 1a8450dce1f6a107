package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/hitoshi/studysync/internal/config"
	"github.com/hitoshi/studysync/internal/handler"
	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/worker/runner"
)

// cleanupSchedule は実行履歴クリーンアップのスケジュール。
const cleanupSchedule = "@daily"

// scheduledJob はcronで定期実行するジョブ1件。
type scheduledJob struct {
	name string
	spec string // 標準の5フィールド形式、または @daily / @every 6h などの記述子
	run  func(ctx context.Context)
}

// scheduler はcronと実行中ジョブの待ち合わせをまとめる。
// Stopは新規の起動を止めた上で実行中のジョブの終了を待つ。
type scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	wg   sync.WaitGroup
}

// newScheduler はジョブをcronに登録したschedulerを返す。
// スケジュールはlocのタイムゾーンで解釈する。
func newScheduler(ctx context.Context, loc *time.Location, jobs []scheduledJob, logger *slog.Logger) (*scheduler, error) {
	s := &scheduler{
		cron: cron.NewWithLocation(loc),
		ctx:  ctx,
	}

	for _, job := range jobs {
		schedule, err := cron.ParseStandard(job.spec)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule for %s %q: %w", job.name, job.spec, err)
		}
		s.cron.Schedule(schedule, cron.FuncJob(func() { s.runNow(job.run) }))
		logger.Debug("ジョブをスケジュールに登録しました",
			slog.String("job", job.name),
			slog.String("schedule", job.spec),
		)
	}

	return s, nil
}

// runNow はジョブを即時にバックグラウンドで実行する。停止後は何もしない。
func (s *scheduler) runNow(fn func(ctx context.Context)) {
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Start はcronを開始する。
func (s *scheduler) Start() {
	s.cron.Start()
}

// Stop はcronを停止し、実行中のジョブの終了を待つ。
func (s *scheduler) Stop() {
	s.cron.Stop()
	s.wg.Wait()
}

// workerJobs はワーカーモードで定期実行するジョブ一覧を返す。
func workerJobs(cfg *config.Config, p *pipeline, logger *slog.Logger) []scheduledJob {
	return []scheduledJob{
		{
			name: string(model.JobClassroomSync),
			spec: cfg.SyncSchedule,
			run: func(ctx context.Context) {
				runScheduled(ctx, p.runner, model.JobClassroomSync, runner.SyncJob(p.engine), logger)
			},
		},
		{
			name: string(model.JobProgressReports),
			spec: cfg.ReportSchedule,
			run: func(ctx context.Context) {
				runScheduled(ctx, p.runner, model.JobProgressReports, runner.ReportJob(p.generator, cfg.ReportWindowDays), logger)
			},
		},
		{
			name: "job-run-cleanup",
			spec: cleanupSchedule,
			run: func(ctx context.Context) {
				runCleanup(ctx, p, logger)
			},
		},
	}
}

// runScheduled はスケジュール起動されたジョブを実行する。
// 前回の実行が終わっていない場合はスキップする。結果のログはRunnerが出力する。
func runScheduled(ctx context.Context, jobRunner handler.JobRunner, job model.JobName, fn runner.Func, logger *slog.Logger) {
	if _, err := jobRunner.Run(ctx, job, fn); errors.Is(err, model.ErrJobAlreadyRunning) {
		logger.Info("前回の実行が継続中のためスケジュール実行をスキップします",
			slog.String("job", string(job)),
		)
	}
}

// runCleanup は保持期間を過ぎた実行履歴を削除する。失敗はログ出力のみ。
func runCleanup(ctx context.Context, p *pipeline, logger *slog.Logger) {
	if _, err := p.pruner.Run(ctx); err != nil {
		logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
