package classroom

// Course は外部クラスルームAPIのコースのレスポンス形式。
type Course struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Section            string `json:"section"`
	DescriptionHeading string `json:"descriptionHeading"`
	Description        string `json:"description"`
	OwnerID            string `json:"ownerId"`
	CourseState        string `json:"courseState"`
	UpdateTime         string `json:"updateTime"`
}

// Date は外部APIの構造化された年月日。
// 値が未設定のフィールドは0になる。
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// IsZero は年月日がすべて未設定かを返す。
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// CourseWork は外部クラスルームAPIの課題のレスポンス形式。
type CourseWork struct {
	ID          string   `json:"id"`
	CourseID    string   `json:"courseId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	State       string   `json:"state"`
	WorkType    string   `json:"workType"`
	MaxPoints   *float64 `json:"maxPoints"`
	DueDate     *Date    `json:"dueDate"`
	UpdateTime  string   `json:"updateTime"`
}

// listCoursesResponse は courses.list のレスポンス。
type listCoursesResponse struct {
	Courses       []Course `json:"courses"`
	NextPageToken string   `json:"nextPageToken"`
}

// listCourseWorkResponse は courses.courseWork.list のレスポンス。
type listCourseWorkResponse struct {
	CourseWork    []CourseWork `json:"courseWork"`
	NextPageToken string       `json:"nextPageToken"`
}

// courseStateActive は外部側で有効なコースの状態。
const courseStateActive = "ACTIVE"
