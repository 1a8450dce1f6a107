package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/studysync/internal/model"
)

// PostgresLinkRepo はPostgreSQLを使用した生徒・先生の紐付けリポジトリ。
type PostgresLinkRepo struct {
	db *sql.DB
}

// NewPostgresLinkRepo はPostgresLinkRepoを生成する。
func NewPostgresLinkRepo(db *sql.DB) *PostgresLinkRepo {
	return &PostgresLinkRepo{db: db}
}

// ListActive は有効な紐付けをすべて返す。
func (r *PostgresLinkRepo) ListActive(ctx context.Context) ([]*model.StudentTeacherLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, teacher_id, active
		 FROM student_teacher_links
		 WHERE active = true
		 ORDER BY student_id, teacher_id`,
	)
	if err != nil {
		return nil, storeError("有効な紐付けの取得", err)
	}
	defer rows.Close()

	var links []*model.StudentTeacherLink
	for rows.Next() {
		l := &model.StudentTeacherLink{}
		if err := rows.Scan(&l.ID, &l.StudentID, &l.TeacherID, &l.Active); err != nil {
			return nil, storeError("紐付けの読み取り", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("紐付けの走査", err)
	}
	return links, nil
}

// PostgresActivityRepo はPostgreSQLを使用した学習ログリポジトリ。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

// ListByStudentInRange は from <= started_at < to の学習ログを開始時刻順に返す。
func (r *PostgresActivityRepo) ListByStudentInRange(ctx context.Context, studentID string, from, to time.Time) ([]*model.ActivityLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, lesson_id, started_at, time_spent_minutes, comprehension_score
		 FROM activity_logs
		 WHERE student_id = $1 AND started_at >= $2 AND started_at < $3
		 ORDER BY started_at`,
		studentID, from, to,
	)
	if err != nil {
		return nil, storeError("学習ログの取得", err)
	}
	defer rows.Close()

	var entries []*model.ActivityLogEntry
	for rows.Next() {
		e := &model.ActivityLogEntry{}
		var minutes sql.NullInt32
		var score sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.StudentID, &e.LessonID, &e.StartedAt, &minutes, &score); err != nil {
			return nil, storeError("学習ログの読み取り", err)
		}
		if minutes.Valid {
			m := int(minutes.Int32)
			e.TimeSpentMinutes = &m
		}
		if score.Valid {
			s := score.Float64
			e.ComprehensionScore = &s
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("学習ログの走査", err)
	}
	return entries, nil
}

// PostgresReportRepo はPostgreSQLを使用した学習進捗レポートリポジトリ。
type PostgresReportRepo struct {
	db *sql.DB
}

// NewPostgresReportRepo はPostgresReportRepoを生成する。
func NewPostgresReportRepo(db *sql.DB) *PostgresReportRepo {
	return &PostgresReportRepo{db: db}
}

// ExistsSince は指定の組についてsince以降に作成されたレポートがあるかを返す。
func (r *PostgresReportRepo) ExistsSince(ctx context.Context, studentID, teacherID string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM progress_reports
		    WHERE student_id = $1 AND teacher_id = $2 AND created_at >= $3
		 )`,
		studentID, teacherID, since,
	).Scan(&exists)
	if err != nil {
		return false, storeError("レポート重複確認", err)
	}
	return exists, nil
}

// Create はレポートを作成する。
func (r *PostgresReportRepo) Create(ctx context.Context, report *model.ProgressReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	recommendations := report.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO progress_reports (id, student_id, teacher_id, window_start, window_end,
		                               total_minutes, active_days, topics_studied, avg_comprehension,
		                               recommendations, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		report.ID,
		report.StudentID,
		report.TeacherID,
		report.WindowStart,
		report.WindowEnd,
		report.TotalMinutes,
		report.ActiveDays,
		report.TopicsStudied,
		report.AvgComprehension,
		pq.Array(recommendations),
		report.CreatedAt,
	)
	if err != nil {
		return storeError("レポートの作成", err)
	}
	return nil
}

// PostgresContactRepo はPostgreSQLを使用した連絡先リポジトリ。
type PostgresContactRepo struct {
	db *sql.DB
}

// NewPostgresContactRepo はPostgresContactRepoを生成する。
func NewPostgresContactRepo(db *sql.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

// FindContact は指定ユーザーの連絡先を返す。見つからない場合はnilを返す。
func (r *PostgresContactRepo) FindContact(ctx context.Context, userID string) (*model.Contact, error) {
	c := &model.Contact{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, email FROM users WHERE id = $1`,
		userID,
	).Scan(&c.UserID, &c.DisplayName, &c.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("連絡先の取得", err)
	}
	return c, nil
}

// compile-time interface checks
var (
	_ LinkRepository     = (*PostgresLinkRepo)(nil)
	_ ActivityRepository = (*PostgresActivityRepo)(nil)
	_ ReportRepository   = (*PostgresReportRepo)(nil)
	_ ContactRepository  = (*PostgresContactRepo)(nil)
)
