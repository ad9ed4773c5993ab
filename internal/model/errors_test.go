package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

// TestAPIErrorHTTPStatus はエラー分類ごとのHTTPステータス対応を検証する。
func TestAPIErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want int
	}{
		{name: "検証エラーは400", err: NewValidationError("bad title"), want: http.StatusBadRequest},
		{name: "設定エラーは500", err: NewConfigError([]string{"GEMINI_API_KEY"}), want: http.StatusInternalServerError},
		{name: "タイムアウトは504", err: NewTimeoutError("generation API", 25*time.Second, nil), want: http.StatusGatewayTimeout},
		{name: "ローカルレート制限は429", err: NewRateLimitError(30 * time.Second), want: http.StatusTooManyRequests},
		{name: "上流クォータ枯渇は429", err: NewQuotaExceededError("generation API"), want: http.StatusTooManyRequests},
		{name: "認証エラーは401", err: NewAuthError("invalid_grant"), want: http.StatusUnauthorized},
		{name: "上流503はパススルー", err: NewUpstreamError("blog API", 503, "unavailable"), want: http.StatusServiceUnavailable},
		{name: "上流403はパススルー", err: NewUpstreamError("blog API", 403, "forbidden"), want: http.StatusForbidden},
		{name: "上流ステータス不明は500", err: NewUpstreamError("blog API", 0, "connection refused"), want: http.StatusInternalServerError},
		{name: "上流3xxは500に丸める", err: NewUpstreamError("blog API", 301, "moved"), want: http.StatusInternalServerError},
		{name: "空コンテンツは500", err: NewGenerationEmptyError(), want: http.StatusInternalServerError},
		{name: "内部エラーは500", err: NewInternalError(errors.New("boom")), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, expected %d", got, tt.want)
			}
		})
	}
}

// TestAPIErrorRetryable は400/401/403のみ再試行不可となることを検証する。
func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want bool
	}{
		{name: "400は再試行不可", err: NewValidationError("bad title"), want: false},
		{name: "401は再試行不可", err: NewAuthError("invalid_grant"), want: false},
		{name: "上流403は再試行不可", err: NewUpstreamError("blog API", 403, "forbidden"), want: false},
		{name: "429は再試行可", err: NewRateLimitError(time.Minute), want: true},
		{name: "500は再試行可", err: NewInternalError(errors.New("boom")), want: true},
		{name: "502パススルーは再試行可", err: NewUpstreamError("blog API", 502, "bad gateway"), want: true},
		{name: "504は再試行可", err: NewTimeoutError("generation API", 25*time.Second, nil), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, expected %v", got, tt.want)
			}
		})
	}
}

// TestNewConfigError は欠落変数名のみがメッセージに含まれることを検証する。
func TestNewConfigError(t *testing.T) {
	err := NewConfigError([]string{"GEMINI_API_KEY", "BLOGGER_BLOG_ID"})

	if !strings.Contains(err.Message, "GEMINI_API_KEY") {
		t.Errorf("Message = %q, expected to contain variable name", err.Message)
	}
	if !strings.Contains(err.Message, "BLOGGER_BLOG_ID") {
		t.Errorf("Message = %q, expected to contain variable name", err.Message)
	}
	if err.Kind != KindConfig {
		t.Errorf("Kind = %q, expected %q", err.Kind, KindConfig)
	}
}

// TestAPIErrorUnwrap はerrors.Is/Asによる原因エラーの抽出を検証する。
func TestAPIErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := NewInternalError(cause)

	if !errors.Is(wrapped, cause) {
		t.Errorf("errors.Is() = false, expected the cause to be reachable")
	}

	var apiErr *APIError
	if !errors.As(fmt.Errorf("handler: %w", wrapped), &apiErr) {
		t.Fatalf("errors.As() = false, expected *APIError to be extractable")
	}
	if apiErr.Code != ErrCodeInternal {
		t.Errorf("Code = %q, expected %q", apiErr.Code, ErrCodeInternal)
	}
}

// TestNewRateLimitError はRetryAfterヒントが保持されることを検証する。
func TestNewRateLimitError(t *testing.T) {
	err := NewRateLimitError(90 * time.Second)

	if err.RetryAfter != 90*time.Second {
		t.Errorf("RetryAfter = %v, expected 90s", err.RetryAfter)
	}
	if !strings.Contains(err.Message, "90") {
		t.Errorf("Message = %q, expected seconds hint", err.Message)
	}
}
