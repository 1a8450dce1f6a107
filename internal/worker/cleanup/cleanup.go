// Package cleanup はジョブ実行履歴（job_runs）の保持期間管理ジョブを提供する。
// 保持期間を超過した実行履歴を日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/studysync/internal/model"
)

// DefaultRetentionDays は実行履歴のデフォルト保持日数。
const DefaultRetentionDays = 30

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// JobRunPruner は保持期間を超過したジョブ実行履歴を削除する。
// 削除条件はfinished_atのみで、何度実行しても結果は変わらない。
type JobRunPruner struct {
	db            Executor
	logger        *slog.Logger
	retentionDays int
}

// NewJobRunPruner はJobRunPrunerを生成する。
// retentionDaysが0以下の場合はDefaultRetentionDaysを使用する。
func NewJobRunPruner(db Executor, logger *slog.Logger, retentionDays int) *JobRunPruner {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &JobRunPruner{
		db:            db,
		logger:        logger,
		retentionDays: retentionDays,
	}
}

// RetentionDays は保持日数を返す。
func (p *JobRunPruner) RetentionDays() int { return p.retentionDays }

// Run はfinished_atが保持期間より古い実行履歴を削除し、削除件数を返す。
func (p *JobRunPruner) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	interval := fmt.Sprintf("%d days", p.retentionDays)

	result, err := p.db.ExecContext(ctx,
		`DELETE FROM job_runs WHERE finished_at < now() - $1::interval`, interval)
	if err != nil {
		p.logger.Error("ジョブ実行履歴の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", p.retentionDays),
		)
		return 0, &model.StoreError{Op: "prune job runs", Err: err}
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, &model.StoreError{Op: "prune job runs", Err: fmt.Errorf("削除件数の取得に失敗: %w", err)}
	}

	p.logger.Info("ジョブ実行履歴のクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", p.retentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}
