package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP          httpSummary       `json:"http"`
	Assignments   map[string]opInfo `json:"assignments"`
	Notifications notificationInfo  `json:"notifications"`
	RateLimit     rateLimitInfo     `json:"rateLimit"`
	Collector     collectorInfo     `json:"collector"`
	Auth          authInfo          `json:"auth"`
	DB            dbInfo            `json:"db"`
	Server        serverInfo        `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type opInfo struct {
	Total    float64 `json:"total"`
	Rejected float64 `json:"rejected"`
}

type notificationInfo struct {
	Sent   float64 `json:"sent"`
	Failed float64 `json:"failed"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type collectorInfo struct {
	BufferSize   float64 `json:"bufferSize"`
	TotalFlushes float64 `json:"totalFlushes"`
	FlushErrors  float64 `json:"flushErrors"`
	Entries      float64 `json:"entries"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type serverInfo struct {
	StartTime       float64 `json:"startTime"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
	SessionsCleaned float64 `json:"sessionsCleaned"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
	MaxConns      float64 `json:"maxConns"`
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Handler returns an http.HandlerFunc that serves a JSON summary of the
// registry.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Middleware records request count, latency and response size keyed by the
// matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				pattern = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.ObserveHTTP(r.Method, pattern, status, ww.BytesWritten(), time.Since(start))
	})
}

// Summarize gathers the registry into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	ops := make(map[string]opInfo)
	if f := fam["samely_assignment_operations_total"]; f != nil {
		for _, metric := range f.GetMetric() {
			op := labelValue(metric, "op")
			info := ops[op]
			v := metric.GetCounter().GetValue()
			info.Total += v
			if labelValue(metric, "outcome") != "ok" {
				info.Rejected += v
			}
			ops[op] = info
		}
	}

	start := gaugeValue(fam["samely_server_start_time_seconds"])
	requests := fam["samely_http_requests_total"]
	durations := fam["samely_http_request_duration_seconds"]

	return &Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(requests, nil),
			ErrorRate:     errorRate(requests),
			P50Latency:    histogramPercentile(durations, 0.50),
			P95Latency:    histogramPercentile(durations, 0.95),
			P99Latency:    histogramPercentile(durations, 0.99),
		},
		Assignments: ops,
		Notifications: notificationInfo{
			Sent:   sumCounter(fam["samely_notifications_total"], withLabel("status", "sent")),
			Failed: sumCounter(fam["samely_notifications_total"], withLabel("status", "failed")),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["samely_ratelimit_rejections_total"], nil),
		},
		Collector: collectorInfo{
			BufferSize:   gaugeValue(fam["samely_activity_buffer_size"]),
			TotalFlushes: sumCounter(fam["samely_activity_flushes_total"], nil),
			FlushErrors:  sumCounter(fam["samely_activity_flushes_total"], withLabel("status", "error")),
			Entries:      sumCounter(fam["samely_activity_entries_total"], nil),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["samely_auth_failures_total"], nil),
			Successes: sumCounter(fam["samely_auth_successes_total"], nil),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["samely_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["samely_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["samely_db_pool_acquired_conns"]),
			MaxConns:      gaugeValue(fam["samely_db_pool_max_conns"]),
		},
		Server: serverInfo{
			StartTime:       start,
			UptimeSeconds:   float64(time.Now().Unix()) - start,
			SessionsCleaned: sumCounter(fam["samely_sessions_cleaned_total"], nil),
		},
	}, nil
}

// --- Prometheus metric helpers ---

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func withLabel(name, value string) func(*dto.Metric) bool {
	return func(m *dto.Metric) bool { return labelValue(m, name) == value }
}

// sumCounter adds up the counters in f accepted by match (all when nil).
func sumCounter(f *dto.MetricFamily, match func(*dto.Metric) bool) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil || (match != nil && !match(m)) {
			continue
		}
		total += m.GetCounter().GetValue()
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 || ms[0].GetGauge() == nil {
		return 0
	}
	return ms[0].GetGauge().GetValue()
}

// errorRate is the share of requests answered with a 4xx or 5xx status.
func errorRate(f *dto.MetricFamily) float64 {
	total := sumCounter(f, nil)
	if total == 0 {
		return 0
	}
	errs := sumCounter(f, func(m *dto.Metric) bool {
		code := labelValue(m, "status_code")
		return len(code) > 0 && code[0] >= '4'
	})
	return errs / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
