package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDKey はコンテキストに格納するリクエストIDのキー。
type requestIDKey struct{}

// NewRequestIDMiddleware はリクエストごとにUUIDを採番するミドルウェアを返す。
// IDはコンテキストとX-Request-IDレスポンスヘッダーの両方に載せる。
// クライアントがX-Request-IDを送ってきた場合はその値を引き継ぐ。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}

			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext はコンテキストからリクエストIDを取り出す。
// 未設定の場合は空文字列を返す。
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
