package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

// queryMetrics covers the RAG side of the API: answers by mode and the
// live snapshot size.
type queryMetrics struct {
	answers    *prometheus.CounterVec
	confidence *prometheus.HistogramVec
	sources    prometheus.Histogram
	duration   *prometheus.HistogramVec

	chunks  prometheus.Gauge
	reloads *prometheus.CounterVec
}

func newQueryMetrics(factory promauto.Factory, labels prometheus.Labels) queryMetrics {
	return queryMetrics{
		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "queries_total",
			Help:        "Total answered queries by answer mode.",
			ConstLabels: labels,
		}, []string{"mode"}),
		confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "confidence",
			Help:        "Distribution of answer confidence.",
			Buckets:     prometheus.LinearBuckets(0, 0.1, 11),
			ConstLabels: labels,
		}, []string{"mode"}),
		sources: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "retrieved_chunks",
			Help:        "Distribution of sources per answered query.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21},
			ConstLabels: labels,
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "rag",
			Name:        "duration_seconds",
			Help:        "Query execution duration in seconds.",
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
			ConstLabels: labels,
		}, []string{"mode"}),
		chunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "chunks",
			Help:        "Chunks in the live index snapshot.",
			ConstLabels: labels,
		}),
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "reloads_total",
			Help:        "Index reload attempts by status.",
			ConstLabels: labels,
		}, []string{"status"}),
	}
}

// ObserveQuery records one answered query.
func (m queryMetrics) ObserveQuery(mode domain.AnswerMode, confidence float64, sources int, duration time.Duration) {
	label := string(mode)
	if label == "" {
		label = "unknown"
	}
	m.answers.WithLabelValues(label).Inc()
	m.confidence.WithLabelValues(label).Observe(confidence)
	m.sources.Observe(float64(sources))
	m.duration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordReload counts a reload; the chunk gauge moves only on success.
func (m queryMetrics) RecordReload(chunks int, err error) {
	if err != nil {
		m.reloads.WithLabelValues("error").Inc()
		return
	}
	m.chunks.Set(float64(chunks))
	m.reloads.WithLabelValues("success").Inc()
}
