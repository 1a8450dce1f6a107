// Package notify は学習進捗レポートの通知送信を提供する。
// 通知はベストエフォートであり、失敗してもレポート生成は失敗扱いにしない。
package notify

import (
	"context"
	"log/slog"

	"github.com/hitoshi/studysync/internal/model"
)

// Notifier はレポート生成後の通知送信インターフェース。
// 返されるエラーは*model.NotifyErrorであり、呼び出し側はログ出力のみ行う。
type Notifier interface {
	Send(ctx context.Context, report *model.ProgressReport) error
}

// NopNotifier は送信設定がない場合に使用する何もしないNotifier。
type NopNotifier struct{}

// Send は何もせずnilを返す。
func (NopNotifier) Send(context.Context, *model.ProgressReport) error { return nil }

// New は設定に応じたNotifierを返す。
// APIキーが未設定の場合は警告を出力してNopNotifierを返す。
func New(cfg EmailConfig, contacts ContactFinder, logger *slog.Logger) Notifier {
	if cfg.APIKey == "" {
		logger.Warn("SENDGRID_API_KEYが未設定のため、レポート通知は送信されません")
		return NopNotifier{}
	}
	return NewEmailNotifier(cfg, contacts, logger)
}

var _ Notifier = NopNotifier{}
