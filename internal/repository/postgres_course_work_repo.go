package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/hitoshi/studysync/internal/model"
)

// PostgresCourseWorkRepo はPostgreSQLを使用した課題リポジトリ。
type PostgresCourseWorkRepo struct {
	db *sql.DB
}

// NewPostgresCourseWorkRepo はPostgresCourseWorkRepoを生成する。
func NewPostgresCourseWorkRepo(db *sql.DB) *PostgresCourseWorkRepo {
	return &PostgresCourseWorkRepo{db: db}
}

// Upsert は (user_id, external_id) をキーに課題を冪等にUPSERTする。
// due_dateは外部の値で毎回上書きし、ローカルでの変更は保持しない。
func (r *PostgresCourseWorkRepo) Upsert(ctx context.Context, work *model.CourseWork) (bool, error) {
	var dueDate, externalUpdatedAt sql.NullTime
	if work.DueDate != nil {
		dueDate = sql.NullTime{Time: *work.DueDate, Valid: true}
	}
	if work.ExternalUpdatedAt != nil {
		externalUpdatedAt = sql.NullTime{Time: *work.ExternalUpdatedAt, Valid: true}
	}
	var maxPoints sql.NullFloat64
	if work.MaxPoints != nil {
		maxPoints = sql.NullFloat64{Float64: *work.MaxPoints, Valid: true}
	}

	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO course_work (id, user_id, course_id, external_id, title, description,
		                          due_date, max_points, state, work_type, external_updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (user_id, external_id) DO UPDATE SET
		    course_id = EXCLUDED.course_id,
		    title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    due_date = EXCLUDED.due_date,
		    max_points = EXCLUDED.max_points,
		    state = EXCLUDED.state,
		    work_type = EXCLUDED.work_type,
		    external_updated_at = EXCLUDED.external_updated_at,
		    updated_at = now()
		 RETURNING id, created_at, updated_at, (xmax = 0)`,
		uuid.New().String(),
		work.UserID,
		work.CourseID,
		work.ExternalID,
		work.Title,
		work.Description,
		dueDate,
		maxPoints,
		string(work.State),
		work.WorkType,
		externalUpdatedAt,
	).Scan(&work.ID, &work.CreatedAt, &work.UpdatedAt, &inserted)
	if err != nil {
		return false, storeError("課題のUPSERT", err)
	}
	return inserted, nil
}

// compile-time interface check
var _ CourseWorkRepository = (*PostgresCourseWorkRepo)(nil)
