package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/pubman/internal/metrics"
	"github.com/hitoshi/pubman/internal/middleware"
	"github.com/hitoshi/pubman/internal/model"
	"github.com/hitoshi/pubman/internal/publish"
	"github.com/hitoshi/pubman/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestRouter(t *testing.T, pipeline *fakePipeline) http.Handler {
	t.Helper()

	store := ratelimit.NewMemoryStore(15*time.Minute, 5)
	t.Cleanup(store.Stop)

	reg := prometheus.NewRegistry()
	return NewRouter(&RouterDeps{
		Pipeline: pipeline,
		Limiter:  store,
		Config:   testConfig(),
		Logger:   discardLogger(),
		Metrics:  metrics.NewCollector(reg),
		Gatherer: reg,
	})
}

func postPublish(router http.Handler, clientIP string) *httptest.ResponseRecorder {
	body := `{"title":"My First Hinglish Blog Post","tags":["tech","hindi"],"publish":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestRouterPublishEndToEnd はルーター経由の公開リクエストを検証する。
func TestRouterPublishEndToEnd(t *testing.T) {
	pipeline := &fakePipeline{}
	router := newTestRouter(t, pipeline)

	w := postPublish(router, "203.0.113.10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", w.Code, w.Body.String())
	}
	if pipeline.calls != 1 {
		t.Errorf("pipeline calls = %d, expected 1", pipeline.calls)
	}
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID header should be set")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, expected nosniff", got)
	}

	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.Status != "live" {
		t.Errorf("response = %+v, expected success/live", resp)
	}
}

// TestRouterRateLimitWindow は同一クライアントの6回目が429になることを検証する。
// 拒否されたリクエストはパイプラインへ到達しない。
func TestRouterRateLimitWindow(t *testing.T) {
	pipeline := &fakePipeline{}
	router := newTestRouter(t, pipeline)

	for i := 1; i <= 5; i++ {
		w := postPublish(router, "203.0.113.10")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, expected 200", i, w.Code)
		}
	}

	w := postPublish(router, "203.0.113.10")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("6th request: status = %d, expected 429", w.Code)
	}
	if pipeline.calls != 5 {
		t.Errorf("pipeline calls = %d, rejected request must not reach the pipeline", pipeline.calls)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}

	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Error != model.ErrCodeRateLimited {
		t.Errorf("error = %q, expected %q", body.Error, model.ErrCodeRateLimited)
	}
	if !body.Retryable {
		t.Error("rate limit rejection should be retryable")
	}
}

// TestRouterRateLimitPerClient はクライアント識別ごとに独立して数えることを検証する。
func TestRouterRateLimitPerClient(t *testing.T) {
	pipeline := &fakePipeline{}
	router := newTestRouter(t, pipeline)

	for i := 0; i < 5; i++ {
		postPublish(router, "203.0.113.10")
	}
	if w := postPublish(router, "203.0.113.10"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("exhausted client: status = %d, expected 429", w.Code)
	}

	// 別クライアントは影響を受けない
	if w := postPublish(router, "198.51.100.7"); w.Code != http.StatusOK {
		t.Errorf("other client: status = %d, expected 200", w.Code)
	}
}

// TestRouterHealthNotRateLimited はヘルスチェックがレート制限の対象外であることを検証する。
func TestRouterHealthNotRateLimited(t *testing.T) {
	router := newTestRouter(t, &fakePipeline{})

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/publish", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.10")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, expected 200", i+1, w.Code)
		}
	}
}

// TestRouterOptionsPreflight はOPTIONSが200と空ボディで応答することを検証する。
func TestRouterOptionsPreflight(t *testing.T) {
	router := newTestRouter(t, &fakePipeline{})

	req := httptest.NewRequest(http.MethodOptions, "/api/publish", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, expected empty", w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Access-Control-Allow-Methods = %q, expected to include POST", got)
	}
}

// TestRouterMethodNotAllowed はサポート外メソッドが405になることを検証する。
func TestRouterMethodNotAllowed(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			pipeline := &fakePipeline{}
			router := newTestRouter(t, pipeline)

			req := httptest.NewRequest(method, "/api/publish", strings.NewReader(`{}`))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, expected 405", w.Code)
			}
			if got := w.Header().Get("Allow"); !strings.Contains(got, "POST") {
				t.Errorf("Allow = %q, expected to include POST", got)
			}
			if pipeline.calls != 0 {
				t.Errorf("pipeline calls = %d, expected 0", pipeline.calls)
			}
		})
	}
}

// TestRouterLiveness はコンテナ用の/healthを検証する。
func TestRouterLiveness(t *testing.T) {
	router := newTestRouter(t, &fakePipeline{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("body = %q, expected ok", w.Body.String())
	}
}

// TestRouterMetricsEndpoint は/metricsがPrometheus形式で応答することを検証する。
func TestRouterMetricsEndpoint(t *testing.T) {
	pipeline := &fakePipeline{}
	router := newTestRouter(t, pipeline)

	postPublish(router, "203.0.113.10")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pubman_") {
		t.Error("metrics output should contain pubman_ series")
	}
}

// TestRouterRecovery はハンドラのpanicが500に変換されることを検証する。
func TestRouterRecovery(t *testing.T) {
	pipeline := &fakePipeline{
		runFunc: func(ctx context.Context, req *model.PublishRequest) (*publish.Outcome, error) {
			panic("boom")
		},
	}
	router := newTestRouter(t, pipeline)

	w := postPublish(router, "203.0.113.10")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, expected 500", w.Code)
	}
}
