package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/studysync/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した外部連携資格情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// ListLinked は連携済みの全アカウントの資格情報を返す。
func (r *PostgresCredentialRepo) ListLinked(ctx context.Context) ([]*model.ExternalCredential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, access_token, refresh_token, expiry, updated_at
		 FROM external_credentials
		 ORDER BY user_id`,
	)
	if err != nil {
		return nil, storeError("連携済みアカウントの取得", err)
	}
	defer rows.Close()

	var creds []*model.ExternalCredential
	for rows.Next() {
		c := &model.ExternalCredential{}
		if err := rows.Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.Expiry, &c.UpdatedAt); err != nil {
			return nil, storeError("連携済みアカウントの読み取り", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("連携済みアカウントの走査", err)
	}

	return creds, nil
}

// UpdateToken は更新後のトークンと有効期限を保存する。
// 対象の資格情報が存在しない場合はエラーを返す。
func (r *PostgresCredentialRepo) UpdateToken(ctx context.Context, cred *model.ExternalCredential) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE external_credentials SET
		    access_token = $2,
		    refresh_token = $3,
		    expiry = $4,
		    updated_at = now()
		 WHERE user_id = $1`,
		cred.UserID, cred.AccessToken, cred.RefreshToken, cred.Expiry,
	)
	if err != nil {
		return storeError("トークンの保存", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return storeError("トークンの保存", err)
	}
	if n == 0 {
		return storeError("トークンの保存", fmt.Errorf("資格情報が見つかりません: user_id=%s", cred.UserID))
	}
	return nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
