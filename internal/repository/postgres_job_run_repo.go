package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/studysync/internal/model"
)

// PostgresJobRunRepo はPostgreSQLを使用したジョブ実行履歴リポジトリ。
type PostgresJobRunRepo struct {
	db *sql.DB
}

// NewPostgresJobRunRepo はPostgresJobRunRepoを生成する。
func NewPostgresJobRunRepo(db *sql.DB) *PostgresJobRunRepo {
	return &PostgresJobRunRepo{db: db}
}

// Create は実行履歴を1件記録する。
func (r *PostgresJobRunRepo) Create(ctx context.Context, run *model.JobRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	summary := run.Summary
	if len(summary) == 0 {
		summary = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_runs (id, job, started_at, finished_at, succeeded, processed, failed, summary, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID,
		string(run.Job),
		run.StartedAt,
		run.FinishedAt,
		run.Succeeded,
		run.Processed,
		run.Failed,
		summary,
		run.Error,
	)
	if err != nil {
		return storeError("ジョブ実行履歴の記録", err)
	}
	return nil
}

// ListRecent は指定ジョブの直近の実行履歴を新しい順にlimit件返す。
func (r *PostgresJobRunRepo) ListRecent(ctx context.Context, job model.JobName, limit int) ([]*model.JobRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job, started_at, finished_at, succeeded, processed, failed, summary, error
		 FROM job_runs
		 WHERE job = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		string(job), limit,
	)
	if err != nil {
		return nil, storeError("ジョブ実行履歴の取得", err)
	}
	defer rows.Close()

	var runs []*model.JobRun
	for rows.Next() {
		run := &model.JobRun{}
		var jobName string
		if err := rows.Scan(&run.ID, &jobName, &run.StartedAt, &run.FinishedAt,
			&run.Succeeded, &run.Processed, &run.Failed, &run.Summary, &run.Error); err != nil {
			return nil, storeError("ジョブ実行履歴の読み取り", err)
		}
		run.Job = model.JobName(jobName)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("ジョブ実行履歴の走査", err)
	}
	return runs, nil
}

// PostgresJobLock はPostgreSQLのセッションアドバイザリロックによるジョブロック。
// ロックはセッションに紐づくため、取得から解放まで1本のコネクションを専有する。
type PostgresJobLock struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresJobLock はPostgresJobLockを生成する。
func NewPostgresJobLock(db *sql.DB, logger *slog.Logger) *PostgresJobLock {
	return &PostgresJobLock{db: db, logger: logger}
}

// TryLock はpg_try_advisory_lockでジョブのロック取得を試みる。
func (l *PostgresJobLock) TryLock(ctx context.Context, job model.JobName) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, storeError("ジョブロック用コネクションの取得", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock(hashtext($1))`, string(job),
	).Scan(&acquired); err != nil {
		conn.Close()
		return nil, storeError("ジョブロックの取得", err)
	}
	if !acquired {
		conn.Close()
		return nil, model.ErrJobAlreadyRunning
	}

	unlock := func() {
		// 呼び出し元のコンテキストがキャンセル済みでも解放は行う
		unlockCtx := context.WithoutCancel(ctx)
		if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, string(job)); err != nil {
			l.logger.Warn("ジョブロックの解放に失敗しました",
				slog.String("job", string(job)),
				slog.String("error", err.Error()),
			)
		}
		conn.Close()
	}
	return unlock, nil
}

// compile-time interface checks
var (
	_ JobRunRepository = (*PostgresJobRunRepo)(nil)
	_ JobLocker        = (*PostgresJobLock)(nil)
)
