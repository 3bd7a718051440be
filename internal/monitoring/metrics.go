package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 提交结果标签
const (
	ResultAccepted    = "accepted"
	ResultHoneypot    = "honeypot"
	ResultInvalid     = "invalid"
	ResultRateLimited = "rate_limited"
	ResultBadBody     = "bad_body"
	ResultForbidden   = "forbidden"
)

// Metrics 监控指标
//
// 所有方法都允许在 nil 接收者上调用，便于测试中省略监控。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 线索指标
	SubmissionsTotal *prometheus.CounterVec
	AttachmentSize   prometheus.Histogram

	// 投递指标
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
	RateLimitErrors *prometheus.CounterVec

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标并注册到独立的 Registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leads_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_submissions_total",
				Help: "Lead submissions by outcome",
			},
			[]string{"result"},
		),

		AttachmentSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leads_attachment_size_bytes",
				Help:    "Size of admitted attachments in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),

		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_deliveries_total",
				Help: "Delivery attempts by channel and status",
			},
			[]string{"channel", "status"},
		),

		DeliveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leads_delivery_duration_seconds",
				Help:    "Delivery duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"channel"},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_rate_limit_blocks_total",
				Help: "Submissions rejected by the rate limiter",
			},
			[]string{"backend"},
		),

		RateLimitErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_rate_limit_errors_total",
				Help: "Rate limiter backend errors (request allowed)",
			},
			[]string{"backend"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "leads_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSubmission 记录一次提交结果
func (m *Metrics) RecordSubmission(result string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(result).Inc()
}

// RecordAttachmentSize 记录附件大小
func (m *Metrics) RecordAttachmentSize(size int64) {
	if m == nil {
		return
	}
	m.AttachmentSize.Observe(float64(size))
}

// RecordDelivery 记录一次通道投递
func (m *Metrics) RecordDelivery(channel, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(channel, status).Inc()
	if duration > 0 {
		m.DeliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
	}
}

// RecordRateLimitBlock 记录限流拒绝
func (m *Metrics) RecordRateLimitBlock(backend string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(backend).Inc()
}

// RecordRateLimitError 记录限流后端错误
func (m *Metrics) RecordRateLimitError(backend string) {
	if m == nil {
		return
	}
	m.RateLimitErrors.WithLabelValues(backend).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// Registry 返回指标所在的 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 /metrics 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
