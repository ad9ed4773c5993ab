// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind はAPIErrorの分類を表す。
// HTTPステータスと再試行可否はKindから導出し、
// メッセージ文字列の照合による分類は行わない。
type Kind string

// 定義済みエラー分類
const (
	KindValidation      Kind = "validation"
	KindConfig          Kind = "config"
	KindTimeout         Kind = "timeout"
	KindRateLimit       Kind = "rate_limit"
	KindAuth            Kind = "auth"
	KindUpstream        Kind = "upstream"
	KindGenerationEmpty Kind = "generation_empty"
	KindInternal        Kind = "internal"
)

// APIError は統一エラーフォーマットを表す。
// 外部呼び出しの失敗箇所でKindを確定させ、ハンドラ境界でHTTPレスポンスへ変換する。
type APIError struct {
	Kind           Kind          // エラー分類
	Code           string        // レスポンスの error フィールドに載せる識別子
	Message        string        // ユーザー向けメッセージ
	UpstreamStatus int           // KindUpstream のときパススルーするステータスコード
	RetryAfter     time.Duration // KindRateLimit のときの再試行待ちヒント
	Err            error         // 原因となった下位エラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus はKindに対応するHTTPステータスコードを返す。
// Upstream系は上流が返した4xx/5xxをそのまま使い、それ以外は500に丸める。
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConfig:
		return http.StatusInternalServerError
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindAuth:
		return http.StatusUnauthorized
	case KindUpstream:
		if e.UpstreamStatus >= 400 && e.UpstreamStatus < 600 {
			return e.UpstreamStatus
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable は再試行で結果が変わる可能性があるかを返す。
// 400/401/403 は入力か認証情報を直さない限り失敗し続けるためfalse。
func (e *APIError) Retryable() bool {
	switch e.HTTPStatus() {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return false
	}
	return true
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInvalidBody      = "INVALID_BODY"
	ErrCodeConfigMissing    = "CONFIG_MISSING"
	ErrCodeUpstreamTimeout  = "UPSTREAM_TIMEOUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeQuotaExceeded    = "QUOTA_EXCEEDED"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeUpstreamError    = "UPSTREAM_ERROR"
	ErrCodeEmptyContent     = "EMPTY_CONTENT"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeValidationFailed,
		Message: message,
	}
}

// NewInvalidBodyError はリクエストボディを解釈できない場合のエラーを生成する。
func NewInvalidBodyError(err error) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidBody,
		Message: "Request body must be a JSON object with a title field",
		Err:     err,
	}
}

// NewConfigError は必須設定の欠落エラーを生成する。
// メッセージには変数名のみを含め、値は決して含めない。
func NewConfigError(missing []string) *APIError {
	return &APIError{
		Kind:    KindConfig,
		Code:    ErrCodeConfigMissing,
		Message: fmt.Sprintf("Missing required environment variables: %s", strings.Join(missing, ", ")),
	}
}

// NewTimeoutError は上流呼び出しのタイムアウトエラーを生成する。
func NewTimeoutError(service string, timeout time.Duration, err error) *APIError {
	return &APIError{
		Kind:    KindTimeout,
		Code:    ErrCodeUpstreamTimeout,
		Message: fmt.Sprintf("The %s did not respond within %s", service, timeout),
		Err:     err,
	}
}

// NewRateLimitError はローカルのレート制限超過エラーを生成する。
func NewRateLimitError(retryAfter time.Duration) *APIError {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	return &APIError{
		Kind:       KindRateLimit,
		Code:       ErrCodeRateLimited,
		Message:    fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", seconds),
		RetryAfter: retryAfter,
	}
}

// NewQuotaExceededError は上流APIのクォータ枯渇エラーを生成する。
func NewQuotaExceededError(service string) *APIError {
	return &APIError{
		Kind:    KindRateLimit,
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("The %s quota has been exhausted. Try again later", service),
	}
}

// NewAuthError はOAuth2認証の拒否エラーを生成する。
func NewAuthError(detail string) *APIError {
	return &APIError{
		Kind:    KindAuth,
		Code:    ErrCodeAuthFailed,
		Message: fmt.Sprintf("Authentication with the blog API failed: %s", detail),
	}
}

// NewUpstreamError は上流APIの一般的な失敗エラーを生成する。
func NewUpstreamError(service string, status int, detail string) *APIError {
	return &APIError{
		Kind:           KindUpstream,
		Code:           ErrCodeUpstreamError,
		Message:        fmt.Sprintf("The %s returned an error: %s", service, detail),
		UpstreamStatus: status,
	}
}

// NewGenerationEmptyError は生成APIが2xxを返しながら本文を含まない場合のエラーを生成する。
func NewGenerationEmptyError() *APIError {
	return &APIError{
		Kind:    KindGenerationEmpty,
		Code:    ErrCodeEmptyContent,
		Message: "The generation API returned empty content",
	}
}

// NewInternalError は予期しない内部エラーを生成する。
func NewInternalError(err error) *APIError {
	return &APIError{
		Kind:    KindInternal,
		Code:    ErrCodeInternal,
		Message: "An unexpected error occurred",
		Err:     err,
	}
}
