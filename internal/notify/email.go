package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/hitoshi/studysync/internal/model"
)

const (
	defaultHost  = "https://api.sendgrid.com"
	sendEndpoint = "/v3/mail/send"
)

// ContactFinder は通知先の連絡先を取得するインターフェース。
// repository.ContactRepositoryが満たす。
type ContactFinder interface {
	FindContact(ctx context.Context, userID string) (*model.Contact, error)
}

// EmailConfig はSendGridによるメール通知の設定。
type EmailConfig struct {
	APIKey    string
	Host      string // テスト用に差し替え可能
	FromEmail string
	FromName  string
	Timeout   time.Duration
	Location  *time.Location // 本文中の日付表示に使うタイムゾーン
}

// EmailNotifier はレポートの要約を先生（保護者）宛てにメールで送信する。
type EmailNotifier struct {
	contacts ContactFinder
	logger   *slog.Logger
	cfg      EmailConfig
	from     *sgmail.Email
}

// NewEmailNotifier はEmailNotifierを生成する。
func NewEmailNotifier(cfg EmailConfig, contacts ContactFinder, logger *slog.Logger) *EmailNotifier {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &EmailNotifier{
		contacts: contacts,
		logger:   logger,
		cfg:      cfg,
		from:     sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
	}
}

var subjectTmpl = template.Must(template.New("subject").Parse(
	`【StudySync】{{.StudentName}}さんの学習レポート（{{.From}}〜{{.To}}）`))

var bodyTmpl = template.Must(template.New("body").Parse(`{{.TeacherName}} 様

{{.StudentName}}さんの {{.From}}〜{{.To}} の学習状況をお知らせします。

・学習時間: {{.TotalMinutes}}分
・学習日数: {{.ActiveDays}}日
・学習トピック数: {{.TopicsStudied}}
・平均理解度: {{printf "%.1f" .AvgComprehension}}
{{if .Recommendations}}
おすすめ:
{{range .Recommendations}}・{{.}}
{{end}}{{end}}
このメールはStudySyncから自動送信されています。
`))

type messageData struct {
	TeacherName      string
	StudentName      string
	From             string
	To               string
	TotalMinutes     int
	ActiveDays       int
	TopicsStudied    int
	AvgComprehension float64
	Recommendations  []string
}

// Send はレポートの通知メールを送信する。
// 連絡先の取得、本文の生成、送信のいずれかに失敗した場合は*model.NotifyErrorを返す。
func (n *EmailNotifier) Send(ctx context.Context, report *model.ProgressReport) error {
	start := time.Now()

	teacher, err := n.contacts.FindContact(ctx, report.TeacherID)
	if err != nil {
		return &model.NotifyError{ReportID: report.ID, Err: fmt.Errorf("先生の連絡先の取得に失敗: %w", err)}
	}
	if teacher == nil || teacher.Email == "" {
		return &model.NotifyError{ReportID: report.ID, Err: errors.New("先生のメールアドレスが登録されていません")}
	}

	studentName := report.StudentID
	student, err := n.contacts.FindContact(ctx, report.StudentID)
	if err != nil {
		return &model.NotifyError{ReportID: report.ID, Err: fmt.Errorf("生徒の連絡先の取得に失敗: %w", err)}
	}
	if student != nil && student.DisplayName != "" {
		studentName = student.DisplayName
	}

	subject, body, err := n.render(teacher, studentName, report)
	if err != nil {
		return &model.NotifyError{ReportID: report.ID, Err: err}
	}

	if err := n.deliver(ctx, teacher, subject, body); err != nil {
		return &model.NotifyError{ReportID: report.ID, Err: err}
	}

	n.logger.Info("レポート通知を送信しました",
		slog.String("report_id", report.ID),
		slog.String("teacher_id", report.TeacherID),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (n *EmailNotifier) render(teacher *model.Contact, studentName string, report *model.ProgressReport) (string, string, error) {
	teacherName := teacher.DisplayName
	if teacherName == "" {
		teacherName = teacher.Email
	}
	// WindowEndは排他的な上限のため、表示上は前日までとする
	data := messageData{
		TeacherName:      teacherName,
		StudentName:      studentName,
		From:             report.WindowStart.In(n.cfg.Location).Format("2006/01/02"),
		To:               report.WindowEnd.Add(-time.Nanosecond).In(n.cfg.Location).Format("2006/01/02"),
		TotalMinutes:     report.TotalMinutes,
		ActiveDays:       report.ActiveDays,
		TopicsStudied:    report.TopicsStudied,
		AvgComprehension: report.AvgComprehension,
		Recommendations:  report.Recommendations,
	}

	var subject, body bytes.Buffer
	if err := subjectTmpl.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("件名の生成に失敗: %w", err)
	}
	if err := bodyTmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("本文の生成に失敗: %w", err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}

func (n *EmailNotifier) prepare(to *model.Contact, subject, body string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(sgmail.NewEmail(to.DisplayName, to.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", body))
	return m
}

func (n *EmailNotifier) deliver(ctx context.Context, to *model.Contact, subject, body string) error {
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	req := sendgrid.GetRequest(n.cfg.APIKey, sendEndpoint, n.cfg.Host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(n.prepare(to, subject, body))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return &model.TransportError{Op: "send notification", Err: err}
	}
	if res.StatusCode >= http.StatusBadRequest {
		return &model.TransportError{
			Op:         "send notification",
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", truncate(res.Body, 200)),
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Notifier = (*EmailNotifier)(nil)
