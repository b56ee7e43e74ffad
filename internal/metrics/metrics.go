// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// イベントディスパッチャーやサービス層から利用する。
type MetricsCollector interface {
	RecordEventReceived()
	RecordEventAttributed()
	RecordEventDiscarded()
	RecordEventDeadLettered()
	RecordGeocodeFailure()
	RecordImpressionBumped()
	RecordHTTPStatus(statusCode int)
	RecordProcessLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	eventsReceived     prometheus.Counter
	eventsAttributed   prometheus.Counter
	eventsDiscarded    prometheus.Counter
	eventsDeadLettered prometheus.Counter
	geocodeFail        prometheus.Counter
	impressionsBumped  prometheus.Counter
	httpStatus         *prometheus.CounterVec
	processLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opalizer_events_received_total",
			Help: "受信したビーコンイベントの合計数",
		}),
		eventsAttributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opalizer_events_attributed_total",
			Help: "店舗ジオフェンスに帰属したイベントの合計数",
		}),
		eventsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opalizer_events_discarded_total",
			Help: "どの店舗の半径にも入らず破棄されたイベントの合計数",
		}),
		eventsDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opalizer_events_deadlettered_total",
			Help: "処理に失敗しデッドレターに記録されたイベントの合計数",
		}),
		geocodeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opalizer_geocode_fail_total",
			Help: "ジオコーディングAPI呼び出し失敗の合計数",
		}),
		impressionsBumped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opalizer_impressions_bumped_total",
			Help: "インプレッションカウンター加算の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opalizer_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		processLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opalizer_event_process_latency_seconds",
			Help:    "イベント処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.eventsReceived,
		c.eventsAttributed,
		c.eventsDiscarded,
		c.eventsDeadLettered,
		c.geocodeFail,
		c.impressionsBumped,
		c.httpStatus,
		c.processLatency,
	)

	return c
}

// RecordEventReceived はビーコンイベントの受信を記録する。
func (c *Collector) RecordEventReceived() {
	c.eventsReceived.Inc()
}

// RecordEventAttributed はイベントの帰属成功を記録する。
func (c *Collector) RecordEventAttributed() {
	c.eventsAttributed.Inc()
}

// RecordEventDiscarded はジオフェンス外イベントの破棄を記録する。
func (c *Collector) RecordEventDiscarded() {
	c.eventsDiscarded.Inc()
}

// RecordEventDeadLettered はデッドレター記録を記録する。
func (c *Collector) RecordEventDeadLettered() {
	c.eventsDeadLettered.Inc()
}

// RecordGeocodeFailure はジオコーディング失敗を記録する。
func (c *Collector) RecordGeocodeFailure() {
	c.geocodeFail.Inc()
}

// RecordImpressionBumped はインプレッション加算を記録する。
func (c *Collector) RecordImpressionBumped() {
	c.impressionsBumped.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProcessLatency はイベント処理のレイテンシを記録する。
func (c *Collector) RecordProcessLatency(duration time.Duration) {
	c.processLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
