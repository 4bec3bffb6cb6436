package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics is the rebuild worker registry.
type WorkerMetrics struct {
	breakerStates

	registry *prometheus.Registry

	rebuilds   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	running    prometheus.Gauge
	chunks     prometheus.Gauge
	requestLag prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": service}

	return &WorkerMetrics{
		breakerStates: newBreakerStates(factory, labels),
		registry:      registry,
		rebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "index_rebuild_total",
			Help:        "Total index rebuilds by status.",
			ConstLabels: labels,
		}, []string{"status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "index_rebuild_duration_seconds",
			Help:        "Index rebuild duration in seconds by status.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			ConstLabels: labels,
		}, []string{"status"}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "index_rebuild_in_flight",
			Help:        "Number of running index rebuilds.",
			ConstLabels: labels,
		}),
		chunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "indexed_chunks",
			Help:        "Chunks produced by the last successful rebuild.",
			ConstLabels: labels,
		}),
		requestLag: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "request_lag_seconds",
			Help:        "Delay between a rebuild request and its processing start.",
			Buckets:     prometheus.ExponentialBuckets(0.1, 2.5, 11),
			ConstLabels: labels,
		}),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRebuild() {
	m.running.Inc()
}

func (m *WorkerMetrics) FinishRebuild(duration time.Duration, chunks int, err error) {
	m.running.Dec()

	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.chunks.Set(float64(chunks))
	}
	m.rebuilds.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveRequestLag ignores negative lags from skewed publisher clocks.
func (m *WorkerMetrics) ObserveRequestLag(lag time.Duration) {
	if lag >= 0 {
		m.requestLag.Observe(lag.Seconds())
	}
}
