package classroom

import (
	"fmt"
	"time"

	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/security"
)

// Mapper は外部APIのレスポンスをローカルのドメインモデルに変換する。
// 必須フィールドの欠落や解釈できない値はmodel.MappingErrorとして返し、
// 部分的にnullを埋めた値を黙って保存することはしない。
type Mapper struct {
	sanitizer security.Sanitizer
}

// NewMapper はMapperを生成する。
func NewMapper(sanitizer security.Sanitizer) *Mapper {
	return &Mapper{sanitizer: sanitizer}
}

// ToCourse は外部のコースを指定ユーザー所有のmodel.Courseに変換する。
func (m *Mapper) ToCourse(userID string, c Course) (*model.Course, error) {
	if c.ID == "" {
		return nil, &model.MappingError{Entity: "course", Field: "id", Reason: "missing"}
	}
	if c.Name == "" {
		return nil, &model.MappingError{Entity: "course", ExternalID: c.ID, Field: "name", Reason: "missing"}
	}

	return &model.Course{
		UserID:      userID,
		ExternalID:  c.ID,
		Name:        c.Name,
		Section:     c.Section,
		Description: m.sanitizer.Sanitize(c.Description),
		OwnerID:     c.OwnerID,
		Active:      c.CourseState == courseStateActive,
	}, nil
}

// ToCourseWork は外部の課題を、ローカルのコースID（courses.id）に紐づくmodel.CourseWorkに変換する。
func (m *Mapper) ToCourseWork(userID, localCourseID string, w CourseWork) (*model.CourseWork, error) {
	if w.ID == "" {
		return nil, &model.MappingError{Entity: "course_work", Field: "id", Reason: "missing"}
	}
	if w.Title == "" {
		return nil, &model.MappingError{Entity: "course_work", ExternalID: w.ID, Field: "title", Reason: "missing"}
	}

	state, err := parseState(w.State)
	if err != nil {
		return nil, &model.MappingError{Entity: "course_work", ExternalID: w.ID, Field: "state", Reason: err.Error()}
	}

	dueDate, err := DueDate(w.DueDate)
	if err != nil {
		return nil, &model.MappingError{Entity: "course_work", ExternalID: w.ID, Field: "dueDate", Reason: err.Error()}
	}

	var updatedAt *time.Time
	if w.UpdateTime != "" {
		t, err := time.Parse(time.RFC3339Nano, w.UpdateTime)
		if err != nil {
			return nil, &model.MappingError{Entity: "course_work", ExternalID: w.ID, Field: "updateTime", Reason: err.Error()}
		}
		t = t.UTC()
		updatedAt = &t
	}

	var maxPoints *float64
	if w.MaxPoints != nil {
		v := *w.MaxPoints
		maxPoints = &v
	}

	return &model.CourseWork{
		UserID:            userID,
		CourseID:          localCourseID,
		ExternalID:        w.ID,
		Title:             w.Title,
		Description:       m.sanitizer.Sanitize(w.Description),
		DueDate:           dueDate,
		MaxPoints:         maxPoints,
		State:             state,
		WorkType:          w.WorkType,
		ExternalUpdatedAt: updatedAt,
	}, nil
}

// DueDate は構造化された年月日をUTCの0時として返す。
// 年月日が未設定の場合はnilを返す。存在しない日付の場合はエラーを返す。
func DueDate(d *Date) (*time.Time, error) {
	if d == nil || d.IsZero() {
		return nil, nil
	}
	if d.Year <= 0 || d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > 31 {
		return nil, &dateError{d: *d}
	}

	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	// time.Dateは2月30日などを翌月に正規化するため、往復で一致することを確認する
	if t.Year() != d.Year || int(t.Month()) != d.Month || t.Day() != d.Day {
		return nil, &dateError{d: *d}
	}
	return &t, nil
}

func parseState(s string) (model.CourseWorkState, error) {
	switch model.CourseWorkState(s) {
	case "":
		return model.CourseWorkStateUnspecified, nil
	case model.CourseWorkStatePublished, model.CourseWorkStateDraft,
		model.CourseWorkStateDeleted, model.CourseWorkStateUnspecified:
		return model.CourseWorkState(s), nil
	default:
		return "", &stateError{state: s}
	}
}

type dateError struct {
	d Date
}

func (e *dateError) Error() string {
	return fmt.Sprintf("invalid date %04d-%02d-%02d", e.d.Year, e.d.Month, e.d.Day)
}

type stateError struct {
	state string
}

func (e *stateError) Error() string {
	return fmt.Sprintf("unknown state %q", e.state)
}
