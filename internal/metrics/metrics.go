// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// プロバイダ呼び出し結果のラベル値。
const (
	OutcomeAccepted    = "accepted"
	OutcomeEmpty       = "empty"
	OutcomeError       = "error"
	OutcomeSkipped     = "skipped"
	OutcomeHit         = "hit"
	OutcomeMiss        = "miss"
	OutcomeNotFound    = "not_found"
	OutcomeSuccess     = "success"
	OutcomeClientError = "client_error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 決算カレンダー集約、リスト取得、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordProviderAttempt(provider, outcome string)
	RecordProviderLatency(provider string, duration time.Duration)
	RecordMockFallback()
	RecordProfileLookup(outcome string)
	RecordListRequest(resource, outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	mockFallback     prometheus.Counter
	profileLookups   *prometheus.CounterVec
	listRequests     *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kolboard_earnings_provider_attempts_total",
			Help: "決算カレンダープロバイダの呼び出し回数（結果別）",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kolboard_earnings_provider_latency_seconds",
			Help:    "決算カレンダープロバイダのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		mockFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kolboard_earnings_mock_fallback_total",
			Help: "全プロバイダが利用できずモックデータを返した回数",
		}),
		profileLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kolboard_profile_lookups_total",
			Help: "企業プロフィール参照の回数（キャッシュヒット・ミス・未検出・エラー別）",
		}, []string{"outcome"}),
		listRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kolboard_list_requests_total",
			Help: "トレンドリスト取得の回数（リソース・結果別）",
		}, []string{"resource", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kolboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.providerAttempts,
		c.providerLatency,
		c.mockFallback,
		c.profileLookups,
		c.listRequests,
		c.httpStatus,
	)

	return c
}

// RecordProviderAttempt はプロバイダ呼び出しの結果を記録する。
func (c *Collector) RecordProviderAttempt(provider, outcome string) {
	c.providerAttempts.WithLabelValues(provider, outcome).Inc()
}

// RecordProviderLatency はプロバイダ呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordMockFallback はモックデータへのフォールバックを記録する。
func (c *Collector) RecordMockFallback() {
	c.mockFallback.Inc()
}

// RecordProfileLookup は企業プロフィール参照の結果を記録する。
func (c *Collector) RecordProfileLookup(outcome string) {
	c.profileLookups.WithLabelValues(outcome).Inc()
}

// RecordListRequest はトレンドリスト取得の結果を記録する。
func (c *Collector) RecordListRequest(resource, outcome string) {
	c.listRequests.WithLabelValues(resource, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordProviderAttempt(string, string) {}
func (Nop) RecordProviderLatency(string, time.Duration) {}
func (Nop) RecordMockFallback() {}
func (Nop) RecordProfileLookup(string) {}
func (Nop) RecordListRequest(string, string) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
