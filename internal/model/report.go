// Package model はドメインモデルを定義する。
package model

import "time"

// StudentTeacherLink は生徒と先生（保護者を含む）の継続的な関係を表す。
// パイプラインからは読み取り専用。
type StudentTeacherLink struct {
	ID        string
	StudentID string
	TeacherID string
	Active    bool
}

// ActivityLogEntry は生徒が完了した1回の学習セッションを表す。
type ActivityLogEntry struct {
	ID                 string
	StudentID          string
	LessonID           string
	StartedAt          time.Time
	TimeSpentMinutes   *int     // NULLは0分として扱う
	ComprehensionScore *float64 // 0〜100。未計測の場合はnil
}

// UsageSummary は集計期間における1生徒の学習状況の要約。
type UsageSummary struct {
	TotalMinutes     int
	ActiveDays       int
	TopicsStudied    int
	AvgComprehension float64
}

// ProgressReport は生成済みの学習進捗レポート。作成後は更新も削除もしない。
type ProgressReport struct {
	ID               string
	StudentID        string
	TeacherID        string
	WindowStart      time.Time
	WindowEnd        time.Time
	TotalMinutes     int
	ActiveDays       int
	TopicsStudied    int
	AvgComprehension float64
	Recommendations  []string
	CreatedAt        time.Time
}
