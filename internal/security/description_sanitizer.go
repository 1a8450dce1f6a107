// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizer は外部クラスルームから取り込んだコース・課題の説明文を
// 保存前にサニタイズする。説明文は先生が外部サービス上で自由に入力した値であり、
// そのまま画面に表示される可能性があるため、bluemondayの許可リストポリシーで
// 書式用のタグとhttp(s)リンクのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は説明文のサニタイズ機能のインターフェースを定義する。
type Sanitizer interface {
	// Sanitize は入力を安全なHTMLに変換する。
	// 同一入力に対して常に同一出力を返し、出力を再度サニタイズしても変化しない。
	Sanitize(raw string) string
}

// descriptionSanitizer はSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので複数のワーカーから共有できる。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer は説明文用のSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, strong, em, b, i, a
//   - aタグ: http/httpsの絶対URLのみ。rel="nofollow noreferrer noopener"とtarget="_blank"を付与
//   - それ以外のタグ（script, iframe, style, img等）と全属性は除去
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "b", "i")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &descriptionSanitizer{policy: p}
}

// Sanitize は説明文をサニタイズし、前後の空白を除去して返す。
func (s *descriptionSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
