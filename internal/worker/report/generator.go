// Package report は生徒と先生の紐付けごとに学習進捗レポートを生成するジョブを提供する。
package report

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/studysync/internal/metrics"
	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/notify"
	"github.com/hitoshi/studysync/internal/repository"
)

const (
	// DefaultWindowDays は集計期間のデフォルト日数。
	DefaultWindowDays = 7
	// DefaultDedupWindow は同一の紐付けに対するレポート再生成を抑止する期間。
	DefaultDedupWindow = 24 * time.Hour
)

// Aggregator は生徒1人分の学習状況を集計するインターフェース。
type Aggregator interface {
	Aggregate(ctx context.Context, studentID string, from, to time.Time) (model.UsageSummary, error)
}

// Generator は学習進捗レポート生成ジョブの本体。
type Generator struct {
	linkRepo       repository.LinkRepository
	reportRepo     repository.ReportRepository
	aggregator     Aggregator
	notifier       notify.Notifier
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	dedupWindow    time.Duration
	maxConcurrency int
	now            func() time.Time
}

// NewGenerator はGeneratorの新しいインスタンスを生成する。
// dedupWindowが0以下の場合は24時間、maxConcurrencyが0以下の場合は1を使用する。
func NewGenerator(
	linkRepo repository.LinkRepository,
	reportRepo repository.ReportRepository,
	aggregator Aggregator,
	notifier notify.Notifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	dedupWindow time.Duration,
	maxConcurrency int,
) *Generator {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Generator{
		linkRepo:       linkRepo,
		reportRepo:     reportRepo,
		aggregator:     aggregator,
		notifier:       notifier,
		metrics:        collector,
		logger:         logger,
		dedupWindow:    dedupWindow,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// linkOutcome は紐付け1件分の処理結果。
type linkOutcome int

const (
	outcomeGenerated linkOutcome = iota
	outcomeSkipped
	outcomeFailed
)

type linkResult struct {
	outcome      linkOutcome
	notifyFailed bool
	err          error
}

// GenerateAll は有効な全紐付けについてレポートを生成し、実行サマリーを返す。
// 集計期間は [now - windowDays日, now) の半開区間。windowDaysが0以下の場合は7日。
// 紐付け単位の失敗はErrorsに記録して継続し、データストア到達不能の場合のみエラーを返す。
func (g *Generator) GenerateAll(ctx context.Context, windowDays int) (model.ReportRunSummary, error) {
	start := time.Now()
	summary := model.ReportRunSummary{Errors: []model.StudentError{}}

	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	now := g.now().UTC()
	windowStart := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	dedupSince := now.Add(-g.dedupWindow)

	links, err := g.linkRepo.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("有効な紐付けの取得に失敗: %w", err)
	}
	summary.TotalCount = len(links)

	if len(links) == 0 {
		g.logger.Info("レポート生成対象の紐付けはありません")
		return summary, nil
	}

	g.logger.Info("学習進捗レポートの生成を開始します",
		slog.Int("link_count", len(links)),
		slog.Int("window_days", windowDays),
		slog.Time("window_start", windowStart),
		slog.Time("window_end", now),
	)

	var mu sync.Mutex
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxConcurrency)

	for _, link := range links {
		if egctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if egctx.Err() != nil {
				return nil
			}
			res := g.generateForLink(egctx, link, windowStart, now, dedupSince)
			if res.outcome == outcomeFailed && model.IsStoreUnreachable(res.err) {
				return res.err
			}

			mu.Lock()
			defer mu.Unlock()
			switch res.outcome {
			case outcomeGenerated:
				summary.GeneratedCount++
			case outcomeSkipped:
				summary.SkippedCount++
			case outcomeFailed:
				summary.Errors = append(summary.Errors, model.StudentError{
					StudentID: link.StudentID,
					TeacherID: link.TeacherID,
					Kind:      string(model.ErrorKindOf(res.err)),
					Error:     res.err.Error(),
				})
			}
			if res.notifyFailed {
				summary.NotifyFailures++
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		g.logger.Error("データストアに到達できないため、レポート生成を中断しました",
			slog.String("error", err.Error()),
		)
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("レポート生成がキャンセルされました: %w", err)
	}

	slices.SortStableFunc(summary.Errors, func(a, b model.StudentError) int {
		return cmp.Or(cmp.Compare(a.StudentID, b.StudentID), cmp.Compare(a.TeacherID, b.TeacherID))
	})

	g.logger.Info("学習進捗レポートの生成が完了しました",
		slog.Int("generated_count", summary.GeneratedCount),
		slog.Int("skipped_count", summary.SkippedCount),
		slog.Int("total_count", summary.TotalCount),
		slog.Int("notify_failures", summary.NotifyFailures),
		slog.Int("error_count", len(summary.Errors)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return summary, nil
}

// generateForLink は紐付け1件分の 重複確認 → 集計 → 保存 → 通知 を行う。
// 通知の失敗は結果に印を付けるだけで、生成の成否には影響しない。
func (g *Generator) generateForLink(
	ctx context.Context,
	link *model.StudentTeacherLink,
	windowStart, windowEnd, dedupSince time.Time,
) linkResult {
	logger := g.logger.With(
		slog.String("student_id", link.StudentID),
		slog.String("teacher_id", link.TeacherID),
	)
	failed := func(err error) linkResult {
		g.metrics.RecordReportFailed(string(model.ErrorKindOf(err)))
		logger.Warn("レポートの生成に失敗しました", slog.String("error", err.Error()))
		return linkResult{outcome: outcomeFailed, err: err}
	}

	exists, err := g.reportRepo.ExistsSince(ctx, link.StudentID, link.TeacherID, dedupSince)
	if err != nil {
		return failed(err)
	}
	if exists {
		g.metrics.RecordReportSkipped()
		logger.Debug("直近にレポートが生成済みのためスキップします")
		return linkResult{outcome: outcomeSkipped}
	}

	usage, err := g.aggregator.Aggregate(ctx, link.StudentID, windowStart, windowEnd)
	if err != nil {
		return failed(err)
	}

	report := &model.ProgressReport{
		StudentID:        link.StudentID,
		TeacherID:        link.TeacherID,
		WindowStart:      windowStart,
		WindowEnd:        windowEnd,
		TotalMinutes:     usage.TotalMinutes,
		ActiveDays:       usage.ActiveDays,
		TopicsStudied:    usage.TopicsStudied,
		AvgComprehension: usage.AvgComprehension,
		Recommendations:  Recommend(usage, windowDaysBetween(windowStart, windowEnd)),
	}
	if err := g.reportRepo.Create(ctx, report); err != nil {
		return failed(err)
	}
	g.metrics.RecordReportGenerated()

	res := linkResult{outcome: outcomeGenerated}
	// 通知はベストエフォート: エラーはログとメトリクスにのみ残す
	if err := g.notifier.Send(ctx, report); err != nil {
		res.notifyFailed = true
		g.metrics.RecordNotifyFailure()
		logger.Warn("レポート通知の送信に失敗しました",
			slog.String("report_id", report.ID),
			slog.String("error", err.Error()),
		)
	}

	logger.Info("レポートを生成しました",
		slog.String("report_id", report.ID),
		slog.Int("total_minutes", usage.TotalMinutes),
		slog.Int("active_days", usage.ActiveDays),
	)
	return res
}

func windowDaysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
