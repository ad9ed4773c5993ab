package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/pubman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// errorにはエラーコード、messageには人間可読な説明、
// retryableには再試行で結果が変わる可能性があるかを載せる。
type ErrorResponseBody struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable"`
}

// WriteAPIError は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// ステータスコードと再試行可否はAPIErrorから導出する。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error:     apiErr.Code,
		Message:   apiErr.Message,
		Retryable: apiErr.Retryable(),
	})
}
