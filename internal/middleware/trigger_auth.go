package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/studysync/internal/model"
)

// TriggerSecretHeader はトリガーシークレットを指定する代替ヘッダー。
const TriggerSecretHeader = "X-Job-Trigger-Secret"

// NewTriggerAuthMiddleware はジョブ起動エンドポイントを事前共有シークレットで保護するミドルウェアを返す。
// シークレットは Authorization: Bearer <secret> または X-Job-Trigger-Secret ヘッダーで受け付け、
// 定数時間で比較する。一致しない場合は401を返す。
func NewTriggerAuthMiddleware(secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	expected := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := presentedSecret(r)
			if len(expected) == 0 || presented == "" ||
				subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				logger.Warn("トリガーシークレットが一致しないため拒否しました",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTriggerUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedSecret(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.Header.Get(TriggerSecretHeader)
}
