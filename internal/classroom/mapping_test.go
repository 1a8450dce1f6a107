package classroom

import (
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/security"
)

func newTestMapper() *Mapper {
	return NewMapper(security.NewDescriptionSanitizer())
}

func TestDueDate(t *testing.T) {
	tests := []struct {
		name    string
		in      *Date
		want    *time.Time
		wantErr bool
	}{
		{name: "年月日あり", in: &Date{Year: 2025, Month: 3, Day: 15}, want: ptrTime(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))},
		{name: "nil", in: nil, want: nil},
		{name: "すべて0", in: &Date{}, want: nil},
		{name: "うるう日", in: &Date{Year: 2024, Month: 2, Day: 29}, want: ptrTime(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))},
		{name: "存在しない日付", in: &Date{Year: 2025, Month: 2, Day: 30}, wantErr: true},
		{name: "月が範囲外", in: &Date{Year: 2025, Month: 13, Day: 1}, wantErr: true},
		{name: "年が欠落", in: &Date{Month: 3, Day: 15}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DueDate(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DueDate(%+v) はエラーを返すべき", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("DueDate(%+v) がエラーを返した: %v", tt.in, err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("DueDate() = %v, want nil", *got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("DueDate() = %v, want %v", got, *tt.want)
			}
		})
	}
}

func TestMapper_ToCourse(t *testing.T) {
	m := newTestMapper()

	course, err := m.ToCourse("u1", Course{
		ID: "ext-1", Name: "Math", Section: "3A", OwnerID: "owner-9",
		Description: `<p>代数</p><script>x</script>`, CourseState: "ACTIVE",
	})
	if err != nil {
		t.Fatalf("ToCourse() がエラーを返した: %v", err)
	}
	if course.UserID != "u1" || course.ExternalID != "ext-1" {
		t.Errorf("マージキーが不正: %q, %q", course.UserID, course.ExternalID)
	}
	if !course.Active {
		t.Error("ACTIVEのコースはActive=trueであるべき")
	}
	if course.Description != "<p>代数</p>" {
		t.Errorf("Description = %q, want サニタイズ済み", course.Description)
	}

	archived, err := m.ToCourse("u1", Course{ID: "ext-2", Name: "Old", CourseState: "ARCHIVED"})
	if err != nil {
		t.Fatalf("ToCourse() がエラーを返した: %v", err)
	}
	if archived.Active {
		t.Error("ARCHIVEDのコースはActive=falseであるべき")
	}
}

func TestMapper_ToCourse_MissingFields(t *testing.T) {
	m := newTestMapper()

	for _, c := range []Course{{Name: "no id"}, {ID: "x"}} {
		_, err := m.ToCourse("u1", c)
		var mappingErr *model.MappingError
		if !errors.As(err, &mappingErr) {
			t.Errorf("ToCourse(%+v) はMappingErrorを返すべき: %v", c, err)
		}
	}
}

func TestMapper_ToCourseWork(t *testing.T) {
	m := newTestMapper()
	points := 100.0

	work, err := m.ToCourseWork("u1", "local-course-id", CourseWork{
		ID: "w1", CourseID: "ext-1", Title: "HW1", State: "PUBLISHED", WorkType: "ASSIGNMENT",
		MaxPoints: &points, DueDate: &Date{Year: 2025, Month: 3, Day: 15},
		UpdateTime: "2025-03-01T10:20:30.123Z",
	})
	if err != nil {
		t.Fatalf("ToCourseWork() がエラーを返した: %v", err)
	}
	if work.CourseID != "local-course-id" {
		t.Errorf("CourseID = %q, ローカルIDを参照すべき", work.CourseID)
	}
	if work.DueDate == nil || !work.DueDate.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DueDate = %v, want 2025-03-15", work.DueDate)
	}
	if work.State != model.CourseWorkStatePublished {
		t.Errorf("State = %q, want PUBLISHED", work.State)
	}
	if work.MaxPoints == nil || *work.MaxPoints != 100 {
		t.Errorf("MaxPoints = %v, want 100", work.MaxPoints)
	}
	if work.ExternalUpdatedAt == nil {
		t.Error("ExternalUpdatedAtが設定されるべき")
	}

	noDue, err := m.ToCourseWork("u1", "local", CourseWork{ID: "w2", Title: "Reading"})
	if err != nil {
		t.Fatalf("ToCourseWork() がエラーを返した: %v", err)
	}
	if noDue.DueDate != nil {
		t.Errorf("期限なしの課題はDueDate=nilであるべき: %v", *noDue.DueDate)
	}
	if noDue.State != model.CourseWorkStateUnspecified {
		t.Errorf("State = %q, want %q", noDue.State, model.CourseWorkStateUnspecified)
	}
}

func TestMapper_ToCourseWork_InvalidPayload(t *testing.T) {
	m := newTestMapper()

	tests := []struct {
		name  string
		work  CourseWork
		field string
	}{
		{name: "ID欠落", work: CourseWork{Title: "x"}, field: "id"},
		{name: "タイトル欠落", work: CourseWork{ID: "w"}, field: "title"},
		{name: "不明な状態", work: CourseWork{ID: "w", Title: "x", State: "EXPLODED"}, field: "state"},
		{name: "不正な日付", work: CourseWork{ID: "w", Title: "x", DueDate: &Date{Year: 2025, Month: 4, Day: 31}}, field: "dueDate"},
		{name: "不正な更新日時", work: CourseWork{ID: "w", Title: "x", UpdateTime: "yesterday"}, field: "updateTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ToCourseWork("u1", "local", tt.work)
			var mappingErr *model.MappingError
			if !errors.As(err, &mappingErr) {
				t.Fatalf("MappingErrorであるべき: %v", err)
			}
			if mappingErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", mappingErr.Field, tt.field)
			}
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
