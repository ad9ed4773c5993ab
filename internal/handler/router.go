package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/pubman/internal/config"
	"github.com/hitoshi/pubman/internal/metrics"
	"github.com/hitoshi/pubman/internal/middleware"
	"github.com/hitoshi/pubman/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Pipeline PipelineRunner
	Limiter  ratelimit.Limiter
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  metrics.PipelineMetrics
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → RequestID → Logging → Recovery
//
// レート制限は外部APIコストが発生するPOST /api/publishのみに適用する。
// ヘルスチェックとメトリクスは制限の対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.Config.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	publishHandler := NewPublishHandler(deps.Pipeline, deps.Config, deps.Logger)

	var recorder middleware.RateLimitRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	rateLimitMw := middleware.NewRateLimitMiddleware(deps.Limiter, deps.Logger, recorder)

	r.Route("/api/publish", func(r chi.Router) {
		r.With(rateLimitMw).Post("/", publishHandler.Publish)
		r.Get("/", publishHandler.Health)
		r.MethodNotAllowed(MethodNotAllowed)
	})

	// コンテナのliveness probe用
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
