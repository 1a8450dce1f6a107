package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedTags は書式用タグが通過することを検証する。
func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{
			name:         "pタグが許可される",
			input:        "<p>第3章を読むこと</p>",
			wantContains: []string{"<p>第3章を読むこと</p>"},
		},
		{
			name:         "箇条書きが許可される",
			input:        "<ul><li>問1</li><li>問2</li></ul>",
			wantContains: []string{"<ul>", "<li>問1</li>", "</ul>"},
		},
		{
			name:         "強調が許可される",
			input:        "<strong>締切厳守</strong><em>任意</em>",
			wantContains: []string{"<strong>締切厳守</strong>", "<em>任意</em>"},
		},
		{
			name:         "httpsリンクが許可される",
			input:        `<a href="https://example.com/worksheet">プリント</a>`,
			wantContains: []string{`href="https://example.com/worksheet"`, "プリント", "nofollow", `target="_blank"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_ForbiddenContent は危険なタグ・属性・スキームが除去されることを検証する。
func TestSanitize_ForbiddenContent(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	tests := []struct {
		name        string
		input       string
		notContains []string
	}{
		{name: "script", input: `<p>課題</p><script>alert(1)</script>`, notContains: []string{"<script", "alert"}},
		{name: "iframe", input: `<iframe src="https://evil.example.com"></iframe>`, notContains: []string{"<iframe"}},
		{name: "onclick", input: `<p onclick="alert(1)">課題</p>`, notContains: []string{"onclick"}},
		{name: "javascriptスキーム", input: `<a href="javascript:alert(1)">x</a>`, notContains: []string{"javascript:"}},
		{name: "img", input: `<img src="https://example.com/a.png">`, notContains: []string{"<img"}},
		{name: "style属性", input: `<p style="color:red">赤</p>`, notContains: []string{"style"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, bad := range tt.notContains {
				if strings.Contains(got, bad) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, bad)
				}
			}
		})
	}
}

// TestSanitize_PlainText はプレーンテキストがそのまま通過することを検証する。
func TestSanitize_PlainText(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	input := "教科書p.42の練習問題を解いてください。"
	if got := sanitizer.Sanitize(input); got != input {
		t.Errorf("Sanitize(%q) = %q, expected unchanged", input, got)
	}
	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, expected empty string", got)
	}
}

// TestSanitize_Idempotent は同期のたびに同じ値が保存されることを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	input := `  <p>問題 & 解答</p><a href="https://example.com">資料</a><script>x</script>  `

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(first)

	if first != second {
		t.Errorf("冪等性違反: 1回目=%q, 2回目=%q", first, second)
	}
	if first != twice {
		t.Errorf("二重サニタイズで結果が変わった: 1回目=%q, 二重=%q", first, twice)
	}
}

func TestDescriptionSanitizerInterface(t *testing.T) {
	var _ Sanitizer = NewDescriptionSanitizer()
}
