// Package metrics はバックエンド呼び出しのPrometheusメトリクス収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// apiclient.MetricsRecorderを満たす。
type Collector struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	unauthorized  prometheus.Counter
	rateLimitWait prometheus.Histogram
	bestEffortErr *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seokit_api_requests_total",
			Help: "バックエンドAPI呼び出しの合計数（エンドポイント・ステータス別）",
		}, []string{"method", "endpoint", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seokit_api_request_duration_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seokit_session_teardown_total",
			Help: "401応答によるセッション破棄の合計数",
		}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seokit_rate_limit_wait_seconds",
			Help:    "クライアント側レート制限による待機時間（秒）",
			Buckets: []float64{0, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		bestEffortErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seokit_best_effort_failures_total",
			Help: "失敗しても呼び出し元に返さない補助呼び出しの失敗数",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.unauthorized,
		c.rateLimitWait,
		c.bestEffortErr,
	)

	return c
}

// RecordRequest はAPI呼び出し1回分の結果を記録する。
// 通信失敗時はstatusCodeに0を渡す。
func (c *Collector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	c.latency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordUnauthorized は401によるセッション破棄を記録する。
func (c *Collector) RecordUnauthorized() {
	c.unauthorized.Inc()
}

// RecordRateLimitWait はレート制限での待機時間を記録する。
func (c *Collector) RecordRateLimitWait(d time.Duration) {
	c.rateLimitWait.Observe(d.Seconds())
}

// RecordBestEffortFailure は補助呼び出し（シェア計測など）の失敗を記録する。
func (c *Collector) RecordBestEffortFailure(operation string) {
	c.bestEffortErr.WithLabelValues(operation).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
