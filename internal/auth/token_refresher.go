// Package auth は外部クラスルームサービスの資格情報の更新を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/studysync/internal/model"
)

const defaultTokenURL = "https://oauth2.googleapis.com/token"

// Refresher はアクセストークンの更新処理を抽象化するインターフェース。
type Refresher interface {
	// Refresh は期限切れの資格情報を更新した新しい値を返す。有効な資格情報はそのまま返す。
	Refresh(ctx context.Context, cred model.ExternalCredential) (model.ExternalCredential, error)
}

// TokenRefresherConfig はトークン更新の設定。
type TokenRefresherConfig struct {
	ClientID     string
	ClientSecret string

	// テスト用にオーバーライド可能なURL
	TokenURL string

	// Timeout はトークンエンドポイント呼び出し1回あたりのタイムアウト。0の場合は無制限。
	Timeout time.Duration

	HTTPClient *http.Client
}

// TokenRefresher はリフレッシュトークンを使ってアクセストークンを再発行する。
// 入力の資格情報は変更せず、更新後の値を新しく返す。
type TokenRefresher struct {
	oauth      oauth2.Config
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// NewTokenRefresher はTokenRefresherを生成する。
func NewTokenRefresher(cfg TokenRefresherConfig) *TokenRefresher {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &TokenRefresher{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		now:        time.Now,
	}
}

// Refresh は資格情報が期限切れ（Expiry <= now）の場合のみトークンエンドポイントを呼び出す。
func (r *TokenRefresher) Refresh(ctx context.Context, cred model.ExternalCredential) (model.ExternalCredential, error) {
	if cred.RefreshToken != "" && !cred.IsStale(r.now()) {
		return cred, nil
	}
	return r.ForceRefresh(ctx, cred)
}

// ForceRefresh は有効期限に関わらずトークンエンドポイントを呼び出して資格情報を更新する。
// 失敗した場合はmodel.AuthErrorを返す。プロバイダーが新しいリフレッシュトークンを
// 発行しなかった場合は既存のものを引き継ぐ。
func (r *TokenRefresher) ForceRefresh(ctx context.Context, cred model.ExternalCredential) (model.ExternalCredential, error) {
	if cred.RefreshToken == "" {
		return cred, &model.AuthError{UserID: cred.UserID, Err: errors.New("リフレッシュトークンが設定されていません")}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	// AccessTokenが空のトークンは無効と判定されるため、必ずリフレッシュが実行される
	tok, err := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return cred, &model.AuthError{UserID: cred.UserID, Err: classifyTokenError(err)}
	}
	if tok.AccessToken == "" {
		return cred, &model.AuthError{UserID: cred.UserID, Err: errors.New("トークンレスポンスにaccess_tokenが含まれていません")}
	}

	refreshed := cred
	refreshed.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	refreshed.Expiry = tok.Expiry.UTC()
	refreshed.UpdatedAt = r.now().UTC()
	return refreshed, nil
}

// classifyTokenError はトークンエンドポイントのエラーをTransportErrorに変換する。
func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &model.TransportError{
			Op:         "refresh token",
			StatusCode: retrieveErr.Response.StatusCode,
			Err:        fmt.Errorf("token endpoint rejected refresh: %s", retrieveErr.ErrorCode),
		}
	}
	return &model.TransportError{Op: "refresh token", Err: err}
}

// compile-time interface check
var _ Refresher = (*TokenRefresher)(nil)
