package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/studysync/internal/model"
)

// ErrorResponseBody はAPIが返すエラーのJSON表現。
// ジョブ起動の失敗時はJobResponseのerrorフィールドにも埋め込まれる。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// internalError は詳細を伏せた500応答の本文。
var internalError = &model.APIError{
	Code:     "INTERNAL_ERROR",
	Message:  "内部エラーが発生しました。",
	Category: "system",
	Action:   "しばらく待ってから再度お試しください。",
}

// NewErrorResponseBody はAPIErrorをレスポンス本文に変換する。
func NewErrorResponseBody(apiErr *model.APIError) *ErrorResponseBody {
	return &ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// WriteJSON はvをJSONにエンコードしてstatusCodeで書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse はapiErrをErrorResponseBodyとして書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteJSON(w, statusCode, NewErrorResponseBody(apiErr))
}

// WriteInternalServerError は500を書き込む。原因はログにだけ残すこと。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, internalError)
}
