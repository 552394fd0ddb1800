package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Domain metrics.
	AssignmentOpsTotal *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	SessionsCleaned    prometheus.Counter

	// Rate limiting.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Activity collector.
	CollectorBufferSize    prometheus.Gauge
	CollectorFlushesTotal  *prometheus.CounterVec
	CollectorFlushDuration prometheus.Histogram
	CollectorEntriesTotal  prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samely_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "samely_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "samely_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		AssignmentOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samely_assignment_operations_total",
			Help: "Assignment lifecycle operations by outcome.",
		}, []string{"op", "outcome"}),

		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samely_notifications_total",
			Help: "Notification delivery attempts.",
		}, []string{"event", "audience", "status"}),

		SessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samely_sessions_cleaned_total",
			Help: "Expired sessions removed by the cleanup job.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samely_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		CollectorBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "samely_activity_buffer_size",
			Help: "Current number of buffered activity entries.",
		}),

		CollectorFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samely_activity_flushes_total",
			Help: "Total number of activity collector flushes.",
		}, []string{"status"}),

		CollectorFlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "samely_activity_flush_duration_seconds",
			Help:    "Duration of activity flush operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		CollectorEntriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samely_activity_entries_total",
			Help: "Total number of activity entries written.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samely_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samely_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "samely_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AssignmentOpsTotal,
		m.NotificationsTotal,
		m.SessionsCleaned,
		m.RateLimitRejectionsTotal,
		m.CollectorBufferSize,
		m.CollectorFlushesTotal,
		m.CollectorFlushDuration,
		m.CollectorEntriesTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector exposes the pool of the given database driver.
func (m *Metrics) RegisterDBPoolCollector(driver string, stats DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(driver, stats))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, pattern string, status, bytes int, took time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pattern).Observe(took.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, pattern).Observe(float64(bytes))
}

// IncAssignmentOp counts an assignment operation and its outcome.
func (m *Metrics) IncAssignmentOp(op, outcome string) {
	m.AssignmentOpsTotal.WithLabelValues(op, outcome).Inc()
}

// IncNotification counts a notification delivery attempt.
func (m *Metrics) IncNotification(event, audience string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.NotificationsTotal.WithLabelValues(event, audience, status).Inc()
}

// AddSessionsCleaned counts sessions removed by the cleanup job.
func (m *Metrics) AddSessionsCleaned(n int64) {
	m.SessionsCleaned.Add(float64(n))
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

// ObserveFlush records an activity collector flush.
func (m *Metrics) ObserveFlush(count int, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		m.CollectorEntriesTotal.Add(float64(count))
	}
	m.CollectorFlushesTotal.WithLabelValues(status).Inc()
	m.CollectorFlushDuration.Observe(took.Seconds())
}

// SetBufferSize reports the number of buffered activity entries.
func (m *Metrics) SetBufferSize(n int) {
	m.CollectorBufferSize.Set(float64(n))
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}
