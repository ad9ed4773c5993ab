// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics はパイプラインのメトリクス収集のインターフェース。
// オーケストレータとハンドラー層から利用する。
type PipelineMetrics interface {
	// RecordStageLatency はパイプラインステージの所要時間を記録する。
	RecordStageLatency(stage string, duration time.Duration)
	// RecordOutcome はリクエスト全体の結果（success / エラーコード）を記録する。
	RecordOutcome(outcome string)
	// RecordUpstreamStatus は外部API呼び出しのHTTPステータスを記録する。
	RecordUpstreamStatus(service string, statusCode int)
	// RecordRateLimited はローカルレート制限による拒否を記録する。
	RecordRateLimited()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	stageLatency   *prometheus.HistogramVec
	outcomes       *prometheus.CounterVec
	upstreamStatus *prometheus.CounterVec
	rateLimited    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pubman_pipeline_stage_seconds",
			Help:    "パイプラインステージごとの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubman_publish_requests_total",
			Help: "結果別の公開リクエスト数",
		}, []string{"outcome"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubman_upstream_status_total",
			Help: "外部APIごとのHTTPステータスコード別レスポンス数",
		}, []string{"service", "status_code"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubman_rate_limited_total",
			Help: "ローカルレート制限で拒否されたリクエストの合計数",
		}),
	}

	reg.MustRegister(
		c.stageLatency,
		c.outcomes,
		c.upstreamStatus,
		c.rateLimited,
	)

	return c
}

// RecordStageLatency はパイプラインステージの所要時間を記録する。
func (c *Collector) RecordStageLatency(stage string, duration time.Duration) {
	c.stageLatency.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordOutcome はリクエスト全体の結果を記録する。
func (c *Collector) RecordOutcome(outcome string) {
	c.outcomes.WithLabelValues(outcome).Inc()
}

// RecordUpstreamStatus は外部API呼び出しのHTTPステータスを記録する。
func (c *Collector) RecordUpstreamStatus(service string, statusCode int) {
	c.upstreamStatus.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
}

// RecordRateLimited はローカルレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// compile-time interface check
var _ PipelineMetrics = (*Collector)(nil)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
