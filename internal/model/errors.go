// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// 運用者向けの原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, job, system
	Action   string // 対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTriggerUnauthorized = "TRIGGER_UNAUTHORIZED"
	ErrCodeJobAlreadyRunning   = "JOB_ALREADY_RUNNING"
	ErrCodeJobFailed           = "JOB_FAILED"
	ErrCodeInvalidWindow       = "INVALID_WINDOW"
)

// NewTriggerUnauthorizedError はトリガーシークレット不一致エラーを生成する。
func NewTriggerUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeTriggerUnauthorized,
		Message:  "ジョブ起動用のシークレットが指定されていないか、一致しません。",
		Category: "auth",
		Action:   "Authorization: Bearer ヘッダーに正しいシークレットを指定してください。",
	}
}

// NewJobAlreadyRunningError は同一ジョブが実行中の場合のエラーを生成する。
func NewJobAlreadyRunningError(job JobName) *APIError {
	return &APIError{
		Code:     ErrCodeJobAlreadyRunning,
		Message:  fmt.Sprintf("ジョブ %s は既に実行中です。", job),
		Category: "job",
		Action:   "実行中のジョブの完了を待ってから再度起動してください。",
	}
}

// NewJobFailedError はパイプラインレベルの障害でジョブが中断した場合のエラーを生成する。
func NewJobFailedError(job JobName) *APIError {
	return &APIError{
		Code:     ErrCodeJobFailed,
		Message:  fmt.Sprintf("ジョブ %s がパイプラインレベルの障害により中断しました。", job),
		Category: "system",
		Action:   "データストアへの接続状況を確認し、ログを参照してください。",
	}
}

// NewInvalidWindowError は集計期間の指定が不正な場合のエラーを生成する。
func NewInvalidWindowError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWindow,
		Message:  fmt.Sprintf("無効な集計期間です: %s", raw),
		Category: "validation",
		Action:   "window_days には1から90の整数を指定してください。",
	}
}

// ErrJobAlreadyRunning は同一ジョブの重複実行を拒否したことを表す。
var ErrJobAlreadyRunning = errors.New("job is already running")

// ErrorKind はパイプラインエラーの分類。メトリクスのラベルとサマリーに使用する。
type ErrorKind string

const (
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindMapping   ErrorKind = "mapping"
	ErrorKindStore     ErrorKind = "store"
	ErrorKindNotify    ErrorKind = "notify"
	ErrorKindUnknown   ErrorKind = "unknown"
)

// AuthError は資格情報の無効・期限切れ・トークン更新拒否を表す。
// アカウント単位で記録し、同一実行内ではリトライしない。
type AuthError struct {
	UserID string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error for user %s: %v", e.UserID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError は外部API・通知先へのネットワーク障害、タイムアウト、非2xx応答を表す。
// StatusCodeはHTTP応答を受け取れなかった場合は0。
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MappingError は外部ペイロードの形式不正（必須フィールド欠落など）を表す。
type MappingError struct {
	Entity     string // "course" / "course_work" など
	ExternalID string
	Field      string
	Reason     string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("invalid %s payload (id=%q): field %s: %s", e.Entity, e.ExternalID, e.Field, e.Reason)
}

// StoreError はローカル永続化の失敗を表す。
// Unreachableがtrueの場合はデータストア自体に到達できず、実行全体を中断すべき障害。
type StoreError struct {
	Op          string
	Unreachable bool
	Err         error
}

func (e *StoreError) Error() string {
	if e.Unreachable {
		return fmt.Sprintf("%s: store unreachable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NotifyError は通知送信の失敗を表す。常にログ出力のみで握りつぶされる。
type NotifyError struct {
	ReportID string
	Err      error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify report %s: %v", e.ReportID, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// IsStoreUnreachable はエラーチェーンにデータストア到達不能のStoreErrorが含まれるかを返す。
func IsStoreUnreachable(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.Unreachable
}

// ErrorKindOf はエラーチェーンに含まれるパイプラインエラーの分類を返す。
// 複数含まれる場合は auth > mapping > store > notify > transport の順で優先する。
func ErrorKindOf(err error) ErrorKind {
	var (
		authErr      *AuthError
		transportErr *TransportError
		mappingErr   *MappingError
		storeErr     *StoreError
		notifyErr    *NotifyError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return ErrorKindAuth
	case errors.As(err, &mappingErr):
		return ErrorKindMapping
	case errors.As(err, &storeErr):
		return ErrorKindStore
	case errors.As(err, &notifyErr):
		return ErrorKindNotify
	case errors.As(err, &transportErr):
		return ErrorKindTransport
	default:
		return ErrorKindUnknown
	}
}
