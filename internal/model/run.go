// Package model はドメインモデルを定義する。
package model

import "time"

// AccountError はSync Engineの実行サマリーに記録されるアカウント単位のエラー。
// CourseIDが空でない場合はコース単位の失敗を表す。
type AccountError struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id,omitempty"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// SyncRunSummary はクラスルーム同期ジョブ1回分の実行サマリー。
type SyncRunSummary struct {
	SyncedCount       int            `json:"synced_count"`
	TotalCount        int            `json:"total_count"`
	CoursesUpserted   int            `json:"courses_upserted"`
	CourseWorkUpserts int            `json:"course_work_upserted"`
	Errors            []AccountError `json:"errors"`
}

// StudentError はレポート生成ジョブの実行サマリーに記録される生徒単位のエラー。
type StudentError struct {
	StudentID string `json:"student_id"`
	TeacherID string `json:"teacher_id"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// ReportRunSummary はレポート生成ジョブ1回分の実行サマリー。
// 通知の失敗はErrorsに含めない。
type ReportRunSummary struct {
	GeneratedCount int            `json:"generated_count"`
	SkippedCount   int            `json:"skipped_count"`
	TotalCount     int            `json:"total_count"`
	NotifyFailures int            `json:"notify_failures"`
	Errors         []StudentError `json:"errors"`
}

// JobName はバッチジョブの種別を表す。
type JobName string

const (
	// JobClassroomSync はクラスルーム同期ジョブ。
	JobClassroomSync JobName = "classroom-sync"
	// JobProgressReports は学習進捗レポート生成ジョブ。
	JobProgressReports JobName = "progress-reports"
)

// レポートの集計期間（日数）として受け付ける範囲
const (
	MinReportWindowDays = 1
	MaxReportWindowDays = 90
)

// ValidReportWindowDays は集計期間の日数が受け付け可能な範囲内かを返す。
func ValidReportWindowDays(days int) bool {
	return days >= MinReportWindowDays && days <= MaxReportWindowDays
}

// JobRun はジョブ実行履歴の1レコード。運用者向けの観測用に保存する。
type JobRun struct {
	ID         string
	Job        JobName
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  bool
	Processed  int
	Failed     int
	Summary    []byte // JSONエンコード済みのサマリー
	Error      string // パイプラインレベルの障害内容
}
