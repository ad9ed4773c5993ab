package middleware

import "net/http"

// NewSecurityHeadersMiddleware は全レスポンスに防御的ヘッダーを付与するミドルウェアを返す。
// このAPIはJSONのみを返し、ブラウザに埋め込まれる画面を持たないため、
// コンテンツ種別の推測とフレーム埋め込みを一律に禁止する。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			next.ServeHTTP(w, r)
		})
	}
}
