// Package handler は公開パイプラインのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/pubman/internal/config"
	"github.com/hitoshi/pubman/internal/middleware"
	"github.com/hitoshi/pubman/internal/model"
	"github.com/hitoshi/pubman/internal/publish"
)

// maxRequestBodySize はリクエストボディの読み取り上限。
const maxRequestBodySize = 64 * 1024

// PipelineRunner は公開パイプライン実行のインターフェース。
// publish.Serviceが満たす。
type PipelineRunner interface {
	Run(ctx context.Context, req *model.PublishRequest) (*publish.Outcome, error)
}

// PublishHandler は /api/publish のHTTPハンドラー。
type PublishHandler struct {
	pipeline PipelineRunner
	config   *config.Config
	logger   *slog.Logger
}

// NewPublishHandler はPublishHandlerを生成する。
func NewPublishHandler(pipeline PipelineRunner, cfg *config.Config, logger *slog.Logger) *PublishHandler {
	return &PublishHandler{
		pipeline: pipeline,
		config:   cfg,
		logger:   logger,
	}
}

// publishSuccessResponse は公開成功時のレスポンスボディ。
type publishSuccessResponse struct {
	Success   bool            `json:"success"`
	PostID    string          `json:"postId"`
	PostURL   string          `json:"postUrl"`
	Status    string          `json:"status"`
	Published string          `json:"published"`
	Timestamp string          `json:"timestamp"`
	Metadata  publishMetadata `json:"metadata"`
}

// publishMetadata は成功レスポンスに付与する統計情報。
type publishMetadata struct {
	TitleLength   int `json:"titleLength"`
	TagCount      int `json:"tagCount"`
	ContentLength int `json:"contentLength"`
}

// Publish は公開リクエストを処理する。
// POST /api/publish
//
// 設定検証はボディ解釈より前に行う。必須設定が欠落している場合は
// ボディが壊れていても400ではなく500を返す。
func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	if missing := h.config.MissingCredentials(); len(missing) > 0 {
		middleware.WriteAPIError(w, model.NewConfigError(missing))
		return
	}

	req, apiErr := parsePublishRequest(r.Body)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	outcome, err := h.pipeline.Run(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := publishSuccessResponse{
		Success:   true,
		PostID:    outcome.Result.PostID,
		PostURL:   outcome.Result.URL,
		Status:    string(outcome.Result.Status),
		Published: outcome.Result.Published,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Metadata: publishMetadata{
			TitleLength:   utf8.RuneCountInString(req.Title),
			TagCount:      len(req.Tags),
			ContentLength: outcome.ContentLength,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// parsePublishRequest はリクエストボディをPublishRequestとして解釈する。
// 通常のJSONオブジェクトに加え、JSONエンコードされた文字列に包まれたJSONも受け付ける。
func parsePublishRequest(body io.Reader) (*model.PublishRequest, *model.APIError) {
	raw, err := io.ReadAll(io.LimitReader(body, maxRequestBodySize))
	if err != nil {
		return nil, model.NewInvalidBodyError(err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, model.NewInvalidBodyError(errors.New("empty request body"))
	}

	// ボディ全体がJSON文字列の場合は中身を取り出してから解釈する
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return nil, model.NewInvalidBodyError(err)
		}
		trimmed = inner
	}

	var req model.PublishRequest
	if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
		// tagsに文字列以外が混ざっている場合などもここで400になる
		return nil, model.NewInvalidBodyError(err)
	}

	return &req, nil
}

// writeServiceError はパイプラインから返されたエラーをHTTPレスポンスに変換する。
func (h *PublishHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.RetryAfter > 0 {
			seconds := int((apiErr.RetryAfter + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
		middleware.WriteAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	h.logger.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteAPIError(w, model.NewInternalError(err))
}

// healthResponse はGET /api/publish のレスポンスボディ。
type healthResponse struct {
	Status      string          `json:"status"`
	Service     string          `json:"service"`
	Timestamp   string          `json:"timestamp"`
	Environment string          `json:"environment"`
	RateLimit   rateLimitConfig `json:"rateLimit"`
}

// rateLimitConfig はヘルスレスポンスに載せるレート制限の設定値。
type rateLimitConfig struct {
	WindowMinutes int `json:"windowMinutes"`
	MaxRequests   int `json:"maxRequests"`
}

// healthErrorResponse は設定欠落時のヘルスレスポンスボディ。
type healthErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health はサービスの稼働状態と設定の健全性を返す。
// GET /api/publish
// 必須設定が欠落している場合は500を返し、欠落した変数名のみ（値は決して含めない）を報告する。
func (h *PublishHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if missing := h.config.MissingCredentials(); len(missing) > 0 {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(healthErrorResponse{
			Status:  "error",
			Message: "Missing required environment variables: " + strings.Join(missing, ", "),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{
		Status:      "ok",
		Service:     "pubman",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Environment: h.config.Environment,
		RateLimit: rateLimitConfig{
			WindowMinutes: int(h.config.RateLimitWindow.Minutes()),
			MaxRequests:   h.config.RateLimitMax,
		},
	})
}

// MethodNotAllowed はサポート外メソッドに405を返す。
// Allowヘッダーに許可メソッドを列挙する。
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, GET, OPTIONS")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(middleware.ErrorResponseBody{
		Error:     "METHOD_NOT_ALLOWED",
		Message:   "Method " + r.Method + " is not allowed. Use POST, GET or OPTIONS",
		Retryable: false,
	})
}
