package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/hitoshi/studysync/internal/model"
)

// PostgresCourseRepo はPostgreSQLを使用したコースリポジトリ。
type PostgresCourseRepo struct {
	db *sql.DB
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db *sql.DB) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

// Upsert は (user_id, external_id) をキーにコースを冪等にUPSERTする。
// UNIQUE(user_id, external_id)制約を利用したINSERT ON CONFLICTで実装する。
// xmax = 0 の行は今回のINSERTで作成された行を意味する。
func (r *PostgresCourseRepo) Upsert(ctx context.Context, course *model.Course) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO courses (id, user_id, external_id, name, section, description, owner_id, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, external_id) DO UPDATE SET
		    name = EXCLUDED.name,
		    section = EXCLUDED.section,
		    description = EXCLUDED.description,
		    owner_id = EXCLUDED.owner_id,
		    active = EXCLUDED.active,
		    updated_at = now()
		 RETURNING id, created_at, updated_at, (xmax = 0)`,
		uuid.New().String(),
		course.UserID,
		course.ExternalID,
		course.Name,
		course.Section,
		course.Description,
		course.OwnerID,
		course.Active,
	).Scan(&course.ID, &course.CreatedAt, &course.UpdatedAt, &inserted)
	if err != nil {
		return false, storeError("コースのUPSERT", err)
	}
	return inserted, nil
}

// FindIDByExternalID は外部IDに対応するローカルのコースIDを返す。見つからない場合は空文字列を返す。
func (r *PostgresCourseRepo) FindIDByExternalID(ctx context.Context, userID, externalID string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM courses WHERE user_id = $1 AND external_id = $2`,
		userID, externalID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storeError("コースIDの検索", err)
	}
	return id, nil
}

// compile-time interface check
var _ CourseRepository = (*PostgresCourseRepo)(nil)
