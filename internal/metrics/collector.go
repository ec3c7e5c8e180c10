// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/BaSui01/diagramflow/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var _ relay.Observer = (*Collector)(nil)

// =============================================================================
// 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 流指标
	streamsActive   *prometheus.GaugeVec
	streamsTotal    *prometheus.CounterVec
	streamDuration  *prometheus.HistogramVec
	streamChunks    *prometheus.CounterVec
	streamBytes     *prometheus.CounterVec
	malformedLines  prometheus.Counter
	upstreamTotal   *prometheus.CounterVec
	usageRejections prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器并注册到 reg
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 流指标
	c.streamsActive = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of streams currently being relayed",
		},
		[]string{"route"},
	)

	c.streamsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of finished streams",
		},
		[]string{"route", "outcome"},
	)

	c.streamDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Stream duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"route", "outcome"},
	)

	c.streamChunks = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunk_frames_total",
			Help:      "Total number of chunk frames written downstream",
		},
		[]string{"route"},
	)

	c.streamBytes = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunk_bytes_total",
			Help:      "Total payload bytes of chunk frames written downstream",
		},
		[]string{"route"},
	)

	c.malformedLines = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_malformed_lines_total",
			Help:      "Total number of upstream SSE lines skipped because they could not be decoded",
		},
	)

	c.upstreamTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_completions_total",
			Help:      "Total number of non-streaming upstream completions",
		},
		[]string{"operation", "status"},
	)

	c.usageRejections = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_rejections_total",
			Help:      "Total number of requests rejected by the daily usage limit",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 流指标记录（relay.Observer）
// =============================================================================

// StreamStarted 实现 relay.Observer
func (c *Collector) StreamStarted(route string) {
	c.streamsActive.WithLabelValues(route).Inc()
}

// StreamFinished 实现 relay.Observer
func (c *Collector) StreamFinished(r relay.Report) {
	outcome := string(r.Outcome)
	c.streamsActive.WithLabelValues(r.Route).Dec()
	c.streamsTotal.WithLabelValues(r.Route, outcome).Inc()
	c.streamDuration.WithLabelValues(r.Route, outcome).Observe(r.Duration.Seconds())
	c.streamChunks.WithLabelValues(r.Route).Add(float64(r.Chunks))
	c.streamBytes.WithLabelValues(r.Route).Add(float64(r.Bytes))
}

// RecordMalformedLine 记录一行被跳过的上游 SSE 数据
func (c *Collector) RecordMalformedLine() {
	c.malformedLines.Inc()
}

// RecordCompletion 记录一次非流式上游调用
func (c *Collector) RecordCompletion(operation, status string) {
	c.upstreamTotal.WithLabelValues(operation, status).Inc()
}

// RecordUsageRejection 记录一次因每日额度被拒绝的请求
func (c *Collector) RecordUsageRejection() {
	c.usageRejections.Inc()
}

// =============================================================================
// 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
