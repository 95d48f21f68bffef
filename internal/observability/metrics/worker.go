package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finsight-io/finsight/internal/core/domain"
)

// WorkerMetrics instruments the extraction pipeline. It satisfies the
// pipeline observer contract, so stage timings and engine fallbacks are
// recorded without the use case knowing about Prometheus.
type WorkerMetrics struct {
	registry *prometheus.Registry

	jobTotal    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobInFlight prometheus.Gauge

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageInFlight *prometheus.GaugeVec

	engineFallbackTotal *prometheus.CounterVec
	queueLag            *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "worker",
			Name:      "job_process_total",
			Help:      "Total processed extraction jobs by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "worker",
			Name:      "job_process_duration_seconds",
			Help:      "Extraction job duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	jobInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "finsight",
			Subsystem: "worker",
			Name:      "job_process_in_flight",
			Help:      "Number of in-flight extraction jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "worker",
			Name:      "stage_process_total",
			Help:      "Total executed pipeline stages by stage and status.",
		},
		[]string{"service", "stage", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "worker",
			Name:      "stage_process_duration_seconds",
			Help:      "Pipeline stage duration in seconds by stage and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage", "status"},
	)
	stageInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "finsight",
			Subsystem: "worker",
			Name:      "stage_process_in_flight",
			Help:      "Number of in-flight pipeline stage executions.",
		},
		[]string{"service", "stage"},
	)
	engineFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "worker",
			Name:      "engine_fallback_total",
			Help:      "Total extraction engine fallbacks by source and target engine.",
		},
		[]string{"service", "from", "to"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		jobTotal,
		jobDuration,
		jobInFlight,
		stageTotal,
		stageDuration,
		stageInFlight,
		engineFallbackTotal,
		queueLag,
	)

	return &WorkerMetrics{
		registry:            registry,
		jobTotal:            jobTotal,
		jobDuration:         jobDuration,
		jobInFlight:         jobInFlight,
		stageTotal:          stageTotal,
		stageDuration:       stageDuration,
		stageInFlight:       stageInFlight,
		engineFallbackTotal: engineFallbackTotal,
		queueLag:            queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.jobInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(service string, duration time.Duration, err error) {
	m.jobInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.jobTotal.WithLabelValues(service, status).Inc()
	m.jobDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

// Observer binds the worker metrics to one service label so the pipeline
// use case can report stage events through a narrow interface.
func (m *WorkerMetrics) Observer(service string) *PipelineObserver {
	return &PipelineObserver{metrics: m, service: service}
}

type PipelineObserver struct {
	metrics *WorkerMetrics
	service string
}

func (o *PipelineObserver) StageStarted(stage domain.PipelineStage) {
	o.metrics.stageInFlight.WithLabelValues(o.service, string(stage)).Inc()
}

func (o *PipelineObserver) StageFinished(stage domain.PipelineStage, duration time.Duration, err error) {
	o.metrics.stageInFlight.WithLabelValues(o.service, string(stage)).Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.stageTotal.WithLabelValues(o.service, string(stage), status).Inc()
	o.metrics.stageDuration.WithLabelValues(o.service, string(stage), status).Observe(duration.Seconds())
}

func (o *PipelineObserver) EngineFallback(from, to domain.ExtractionEngine) {
	o.metrics.engineFallbackTotal.WithLabelValues(o.service, string(from), string(to)).Inc()
}
