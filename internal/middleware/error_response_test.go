package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/pubman/internal/model"
)

// TestWriteAPIError は統一エラーフォーマットの書き込みを検証する。
func TestWriteAPIError(t *testing.T) {
	tests := []struct {
		name          string
		err           *model.APIError
		wantStatus    int
		wantCode      string
		wantRetryable bool
	}{
		{
			name:          "検証エラーは400で再試行不可",
			err:           model.NewValidationError("Title must be between 5 and 200 characters"),
			wantStatus:    http.StatusBadRequest,
			wantCode:      model.ErrCodeValidationFailed,
			wantRetryable: false,
		},
		{
			name:          "認証エラーは401で再試行不可",
			err:           model.NewAuthError("invalid_grant"),
			wantStatus:    http.StatusUnauthorized,
			wantCode:      model.ErrCodeAuthFailed,
			wantRetryable: false,
		},
		{
			name:          "タイムアウトは504で再試行可",
			err:           model.NewTimeoutError("generation API", 25*time.Second, nil),
			wantStatus:    http.StatusGatewayTimeout,
			wantCode:      model.ErrCodeUpstreamTimeout,
			wantRetryable: true,
		},
		{
			name:          "設定欠落は500で再試行可",
			err:           model.NewConfigError([]string{"GEMINI_API_KEY"}),
			wantStatus:    http.StatusInternalServerError,
			wantCode:      model.ErrCodeConfigMissing,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteAPIError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, expected %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Error != tt.wantCode {
				t.Errorf("error = %q, expected %q", body.Error, tt.wantCode)
			}
			if body.Message == "" {
				t.Error("message should not be empty")
			}
			if body.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, expected %v", body.Retryable, tt.wantRetryable)
			}
		})
	}
}

// TestWriteAPIError_ConfigErrorNeverLeaksValues は設定エラーが値を含まないことを検証する。
func TestWriteAPIError_ConfigErrorNeverLeaksValues(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, model.NewConfigError([]string{"BLOGGER_CLIENT_SECRET", "GEMINI_API_KEY"}))

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	// 変数名のみが載る
	for _, name := range []string{"BLOGGER_CLIENT_SECRET", "GEMINI_API_KEY"} {
		if !strings.Contains(body.Message, name) {
			t.Errorf("message %q should name the missing variable %s", body.Message, name)
		}
	}
}
