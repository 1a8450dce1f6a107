// Package model はドメインモデルを定義する。
package model

import "time"

// ExternalCredential は外部クラスルームサービスと連携済みのアカウント資格情報を表す。
// 1ユーザーにつき1件。連携操作自体はこのパイプラインの範囲外で行われる。
type ExternalCredential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time // アクセストークンの有効期限（絶対時刻）
	UpdatedAt    time.Time
}

// IsStale はnow時点でアクセストークンが期限切れかどうかを返す。
// Expiry <= now の場合は使用前に更新が必要とみなす。
func (c *ExternalCredential) IsStale(now time.Time) bool {
	return !c.Expiry.After(now)
}

// Contact は通知先として参照するユーザーの表示名とメールアドレス。
type Contact struct {
	UserID      string
	DisplayName string
	Email       string
}
