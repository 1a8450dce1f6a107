// Package runner はバッチジョブの実行を統括する。
// 同一ジョブの重複実行の防止、実行履歴の記録、メトリクスの記録を行う。
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/studysync/internal/metrics"
	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/repository"
)

// Outcome はジョブ1回分の結果。
type Outcome struct {
	Summary   any // JSONエンコードして実行履歴とレスポンスに使う
	Processed int
	Failed    int
}

// Func はジョブ本体。エラーはパイプラインレベルの障害のみを返す。
type Func func(ctx context.Context) (Outcome, error)

// Runner はジョブを1つずつ実行する。
// プロセス内のガードとJobLockerによるプロセス間ロックの両方を取得してから実行する。
type Runner struct {
	locker  repository.JobLocker
	runs    repository.JobRunRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running map[model.JobName]bool
}

// New はRunnerを生成する。lockerとrunsはnilの場合は使用しない。
func New(
	locker repository.JobLocker,
	runs repository.JobRunRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Runner {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Runner{
		locker:  locker,
		runs:    runs,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
		running: make(map[model.JobName]bool),
	}
}

// Run はジョブを実行する。
// 同じジョブが実行中の場合はmodel.ErrJobAlreadyRunningを返し、fnは呼び出さない。
func (r *Runner) Run(ctx context.Context, job model.JobName, fn Func) (Outcome, error) {
	if !r.acquire(job) {
		return Outcome{}, model.ErrJobAlreadyRunning
	}
	defer r.release(job)

	if r.locker != nil {
		unlock, err := r.locker.TryLock(ctx, job)
		if err != nil {
			if errors.Is(err, model.ErrJobAlreadyRunning) {
				r.logger.Info("他のプロセスで実行中のためジョブをスキップします", slog.String("job", string(job)))
			}
			return Outcome{}, err
		}
		defer unlock()
	}

	startedAt := r.now().UTC()
	r.logger.Info("ジョブを開始します", slog.String("job", string(job)))

	out, runErr := fn(ctx)

	finishedAt := r.now().UTC()
	duration := finishedAt.Sub(startedAt)
	succeeded := runErr == nil
	r.metrics.RecordJobRun(string(job), succeeded, duration)
	r.record(ctx, job, startedAt, finishedAt, out, runErr)

	attrs := []any{
		slog.String("job", string(job)),
		slog.Bool("succeeded", succeeded),
		slog.Int("processed", out.Processed),
		slog.Int("failed", out.Failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	}
	if runErr != nil {
		r.logger.Error("ジョブがパイプラインレベルの障害で失敗しました", append(attrs, slog.String("error", runErr.Error()))...)
	} else {
		r.logger.Info("ジョブが完了しました", attrs...)
	}

	return out, runErr
}

func (r *Runner) acquire(job model.JobName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[job] {
		return false
	}
	r.running[job] = true
	return true
}

func (r *Runner) release(job model.JobName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, job)
}

// record は実行履歴を保存する。保存の失敗はログ出力のみでジョブの結果には影響しない。
func (r *Runner) record(ctx context.Context, job model.JobName, startedAt, finishedAt time.Time, out Outcome, runErr error) {
	if r.runs == nil {
		return
	}

	run := &model.JobRun{
		Job:        job,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Succeeded:  runErr == nil,
		Processed:  out.Processed,
		Failed:     out.Failed,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if out.Summary != nil {
		b, err := json.Marshal(out.Summary)
		if err != nil {
			r.logger.Warn("実行サマリーのエンコードに失敗しました",
				slog.String("job", string(job)),
				slog.String("error", err.Error()),
			)
		} else {
			run.Summary = b
		}
	}

	// ジョブがキャンセルされた場合でも履歴は残す
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.runs.Create(ctx, run); err != nil {
		r.logger.Warn("ジョブ実行履歴の保存に失敗しました",
			slog.String("job", string(job)),
			slog.String("error", err.Error()),
		)
	}
}
