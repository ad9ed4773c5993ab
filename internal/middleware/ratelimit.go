package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/pubman/internal/model"
	"github.com/hitoshi/pubman/internal/ratelimit"
)

// RateLimitRecorder はレート制限拒否のメトリクス記録のインターフェース。
type RateLimitRecorder interface {
	RecordRateLimited()
}

// NewRateLimitMiddleware はクライアント単位の固定ウィンドウレート制限ミドルウェアを返す。
// 上限超過時はRetry-Afterヘッダー付きの429を返し、後続のハンドラーは呼ばない。
// 外部APIコストを発生させないため、このミドルウェアはパイプラインの前段に配置する。
// カウンタストアへの到達失敗時はフェイルオープンし、警告ログのみ残す。
// recorderがnilでない場合、拒否をメトリクスに記録する。
func NewRateLimitMiddleware(limiter ratelimit.Limiter, logger *slog.Logger, recorder RateLimitRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ClientIDFromRequest(r)

			result, err := limiter.Check(r.Context(), clientID)
			if err != nil {
				// カウンタストア障害でAPI全体を止めない
				logger.Warn("rate limit check failed, allowing request",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				logger.Warn("rate limit exceeded",
					slog.String("client_id", clientID),
					slog.String("path", r.URL.Path),
				)
				if recorder != nil {
					recorder.RecordRateLimited()
				}
				writeRateLimitResponse(w, result.RetryAfter)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIDFromRequest はリクエストからクライアント識別子を抽出する。
// X-Forwarded-Forの先頭 → X-Real-IP → RemoteAddrの順で解決する。
func ClientIDFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// カンマ区切りの先頭が元のクライアント
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse はRetry-Afterヘッダー付きの429レスポンスを書き込む。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteAPIError(w, model.NewRateLimitError(retryAfter))
}
