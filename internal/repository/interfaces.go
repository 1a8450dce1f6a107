// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/studysync/internal/model"
)

// CredentialRepository は外部クラスルーム連携の資格情報の永続化インターフェース。
// パイプラインが書き込むのはトークン更新結果のみ。
type CredentialRepository interface {
	// ListLinked は連携済みの全アカウントの資格情報を返す。
	ListLinked(ctx context.Context) ([]*model.ExternalCredential, error)

	// UpdateToken は更新後のアクセストークン、リフレッシュトークン、有効期限を保存する。
	UpdateToken(ctx context.Context, cred *model.ExternalCredential) error
}

// CourseRepository はコースのミラーの永続化インターフェース。
type CourseRepository interface {
	// Upsert は (user_id, external_id) をキーにコースを冪等にUPSERTする。
	// 既存の場合はname, section, description, owner_id, activeを上書きする。
	// course.IDにローカルIDを設定し、新規作成だった場合はtrueを返す。
	Upsert(ctx context.Context, course *model.Course) (bool, error)

	// FindIDByExternalID は外部IDに対応するローカルのコースIDを返す。
	// 見つからない場合は空文字列を返す。
	FindIDByExternalID(ctx context.Context, userID, externalID string) (string, error)
}

// CourseWorkRepository は課題のミラーの永続化インターフェース。
type CourseWorkRepository interface {
	// Upsert は (user_id, external_id) をキーに課題を冪等にUPSERTする。
	// due_dateを含む可変フィールドは毎回上書きする。新規作成だった場合はtrueを返す。
	Upsert(ctx context.Context, work *model.CourseWork) (bool, error)
}

// LinkRepository は生徒と先生の紐付けの読み取りインターフェース。
type LinkRepository interface {
	// ListActive は有効な紐付けをすべて返す。
	ListActive(ctx context.Context) ([]*model.StudentTeacherLink, error)
}

// ActivityRepository は学習ログの読み取りインターフェース。
type ActivityRepository interface {
	// ListByStudentInRange は from <= started_at < to の学習ログを返す。
	ListByStudentInRange(ctx context.Context, studentID string, from, to time.Time) ([]*model.ActivityLogEntry, error)
}

// ReportRepository は学習進捗レポートの永続化インターフェース。
type ReportRepository interface {
	// ExistsSince は指定の生徒と先生の組についてsince以降に作成されたレポートがあるかを返す。
	ExistsSince(ctx context.Context, studentID, teacherID string, since time.Time) (bool, error)

	// Create はレポートを作成する。report.IDとCreatedAtが未設定の場合は採番する。
	Create(ctx context.Context, report *model.ProgressReport) error
}

// ContactRepository は通知先の表示名とメールアドレスの読み取りインターフェース。
type ContactRepository interface {
	// FindContact は指定ユーザーの連絡先を返す。見つからない場合はnilを返す。
	FindContact(ctx context.Context, userID string) (*model.Contact, error)
}

// JobRunRepository はジョブ実行履歴の永続化インターフェース。
type JobRunRepository interface {
	// Create は実行履歴を1件記録する。
	Create(ctx context.Context, run *model.JobRun) error

	// ListRecent は指定ジョブの直近の実行履歴を新しい順にlimit件返す。
	ListRecent(ctx context.Context, job model.JobName, limit int) ([]*model.JobRun, error)
}

// JobLocker はジョブの重複実行を防ぐプロセス間ロックのインターフェース。
type JobLocker interface {
	// TryLock はジョブのロック取得を試みる。取得できた場合は解放用の関数を返す。
	// 他のプロセスが保持している場合はmodel.ErrJobAlreadyRunningを返す。
	TryLock(ctx context.Context, job model.JobName) (unlock func(), err error)
}
