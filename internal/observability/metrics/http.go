package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	askRequestsTotal *prometheus.CounterVec
	askRefusalsTotal *prometheus.CounterVec
	askPassages      *prometheus.HistogramVec
	sessionsTotal    *prometheus.CounterVec
	exportsTotal     *prometheus.CounterVec
	uploadBytes      *prometheus.HistogramVec
	dedupHitsTotal   *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
	overloadedTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "finsight",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	askRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "chat",
			Name:      "ask_requests_total",
			Help:      "Total answered session questions.",
		},
		[]string{"service"},
	)
	askRefusalsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "chat",
			Name:      "ask_refusals_total",
			Help:      "Total questions refused for lack of grounded passages.",
		},
		[]string{"service"},
	)
	askPassages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "chat",
			Name:      "ask_passages",
			Help:      "Distribution of passages used per answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "chat",
			Name:      "sessions_total",
			Help:      "Total created chat sessions.",
		},
		[]string{"service"},
	)
	exportsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "http",
			Name:      "table_exports_total",
			Help:      "Total workbook exports by status.",
		},
		[]string{"service", "status"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "http",
			Name:      "upload_bytes",
			Help:      "Distribution of uploaded document sizes in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
		[]string{"service"},
	)
	dedupHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "http",
			Name:      "upload_dedup_hits_total",
			Help:      "Total uploads answered from an existing ready document.",
		},
		[]string{"service"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter.",
		},
		[]string{"service"},
	)
	overloadedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "http",
			Name:      "overloaded_total",
			Help:      "Total requests rejected by the backpressure gate.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		askRequestsTotal,
		askRefusalsTotal,
		askPassages,
		sessionsTotal,
		exportsTotal,
		uploadBytes,
		dedupHitsTotal,
		rateLimitedTotal,
		overloadedTotal,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		askRequestsTotal: askRequestsTotal,
		askRefusalsTotal: askRefusalsTotal,
		askPassages:      askPassages,
		sessionsTotal:    sessionsTotal,
		exportsTotal:     exportsTotal,
		uploadBytes:      uploadBytes,
		dedupHitsTotal:   dedupHitsTotal,
		rateLimitedTotal: rateLimitedTotal,
		overloadedTotal:  overloadedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/jobs/"):
		return "/v1/jobs/{job_id}"
	case strings.HasPrefix(path, "/v1/tables/"):
		return "/v1/tables/{table_id}"
	case strings.HasPrefix(path, "/v1/sessions/"):
		return "/v1/sessions/{session_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordAsk(service string, passageCount int, refused bool) {
	m.askRequestsTotal.WithLabelValues(service).Inc()
	m.askPassages.WithLabelValues(service).Observe(float64(passageCount))
	if refused {
		m.askRefusalsTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordSessionCreated(service string) {
	m.sessionsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordExport(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.exportsTotal.WithLabelValues(service, status).Inc()
}

func (m *HTTPServerMetrics) RecordUpload(service string, size int, deduplicated bool) {
	m.uploadBytes.WithLabelValues(service).Observe(float64(size))
	if deduplicated {
		m.dedupHitsTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordRateLimited(service string) {
	m.rateLimitedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordOverloaded(service string) {
	m.overloadedTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
