package runner

import (
	"context"

	"github.com/hitoshi/studysync/internal/model"
)

// Syncer はクラスルーム同期ジョブのインターフェース。
type Syncer interface {
	SyncAll(ctx context.Context) (model.SyncRunSummary, error)
}

// ReportGenerator はレポート生成ジョブのインターフェース。
type ReportGenerator interface {
	GenerateAll(ctx context.Context, windowDays int) (model.ReportRunSummary, error)
}

// SyncJob はSyncerをRunnerで実行できるFuncに変換する。
// 同期できなかったアカウント数をFailedとする。
func SyncJob(s Syncer) Func {
	return func(ctx context.Context) (Outcome, error) {
		summary, err := s.SyncAll(ctx)
		return Outcome{
			Summary:   summary,
			Processed: summary.TotalCount,
			Failed:    summary.TotalCount - summary.SyncedCount,
		}, err
	}
}

// ReportJob はReportGeneratorをRunnerで実行できるFuncに変換する。
// 生成に失敗した紐付け数をFailedとする（通知の失敗は含めない）。
func ReportJob(g ReportGenerator, windowDays int) Func {
	return func(ctx context.Context) (Outcome, error) {
		summary, err := g.GenerateAll(ctx, windowDays)
		return Outcome{
			Summary:   summary,
			Processed: summary.TotalCount,
			Failed:    len(summary.Errors),
		}, err
	}
}
