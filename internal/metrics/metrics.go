package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plagiarism"

// Metrics groups the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Pipelines        *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	Comparisons      *prometheus.CounterVec
	Scores           prometheus.Histogram
	ArtifactsDeleted prometheus.Counter
	Events           *prometheus.CounterVec
	ActiveWorkers    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Pipelines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipelines_total",
				Help:      "Total number of attachment pipelines by outcome",
			},
			[]string{"status"},
		),
		PipelineDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Attachment pipeline duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		Comparisons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "comparisons_total",
				Help:      "Prior submissions handled by outcome",
			},
			[]string{"result"},
		),
		Scores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "percentage_plagiarized",
				Help:      "Distribution of computed plagiarism percentages",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
		ArtifactsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_deleted_total",
				Help:      "Stored model and corpus artifacts deleted",
			},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_events_total",
				Help:      "Queue events consumed by routing key and outcome",
			},
			[]string{"routing_key", "status"},
		),
		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workers",
				Help:      "Workers currently processing a task",
			},
		),
	}

	m.registry.MustRegister(
		m.Pipelines,
		m.PipelineDuration,
		m.Comparisons,
		m.Scores,
		m.ArtifactsDeleted,
		m.Events,
		m.ActiveWorkers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePipeline(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Pipelines.WithLabelValues(status).Inc()
	m.PipelineDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveComparison(result string) {
	if m == nil {
		return
	}
	m.Comparisons.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveScore(percentage float64) {
	if m == nil {
		return
	}
	m.Scores.Observe(percentage)
}

func (m *Metrics) ArtifactDeleted() {
	if m == nil {
		return
	}
	m.ArtifactsDeleted.Inc()
}

func (m *Metrics) ObserveEvent(routingKey, status string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(routingKey, status).Inc()
}

func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Inc()
}

func (m *Metrics) WorkerFinished() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Dec()
}
