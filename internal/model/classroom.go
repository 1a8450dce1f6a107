// Package model はドメインモデルを定義する。
package model

import "time"

// Course は外部クラスルームのコースをローカルにミラーしたもの。
// (UserID, ExternalID) がマージキーで一意。
type Course struct {
	ID          string
	UserID      string
	ExternalID  string
	Name        string
	Section     string
	Description string // サニタイズ済み
	OwnerID     string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CourseWorkState は外部システム側の課題の状態を表す。
type CourseWorkState string

const (
	// CourseWorkStatePublished は公開済みの課題。
	CourseWorkStatePublished CourseWorkState = "PUBLISHED"
	// CourseWorkStateDraft は下書きの課題。
	CourseWorkStateDraft CourseWorkState = "DRAFT"
	// CourseWorkStateDeleted は外部側で削除された課題。
	CourseWorkStateDeleted CourseWorkState = "DELETED"
	// CourseWorkStateUnspecified は状態が未指定の課題。
	CourseWorkStateUnspecified CourseWorkState = "COURSE_WORK_STATE_UNSPECIFIED"
)

// CourseWork は外部クラスルームの課題をローカルにミラーしたもの。
// CourseIDはローカルのcourses.idを参照する（外部IDではない）。
// (UserID, ExternalID) がマージキーで一意。
type CourseWork struct {
	ID                string
	UserID            string
	CourseID          string
	ExternalID        string
	Title             string
	Description       string     // サニタイズ済み
	DueDate           *time.Time // 外部の年月日から毎回再計算する
	MaxPoints         *float64
	State             CourseWorkState
	WorkType          string
	ExternalUpdatedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
