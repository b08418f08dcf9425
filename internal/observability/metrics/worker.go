package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

// WorkerMetrics tracks queue deliveries handled by the worker. Pipeline
// internals are recorded by AnalysisMetrics on the same registry.
type WorkerMetrics struct {
	registry *prometheus.Registry

	deliveriesTotal    *prometheus.CounterVec
	deliveryDuration   *prometheus.HistogramVec
	deliveriesInFlight prometheus.Gauge
	queueLag           *prometheus.HistogramVec
	complianceScore    *prometheus.HistogramVec
	resultsTotal       *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	deliveriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "deliveries_total",
			Help:      "Analysis requests consumed from the queue by run outcome.",
		},
		[]string{"service", "outcome"},
	)
	deliveryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "delivery_duration_seconds",
			Help:      "Time from receiving a delivery to the end of its run, by outcome.",
			Buckets:   []float64{0.05, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"service", "outcome"},
	)
	deliveriesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "deliveries_in_flight",
			Help:        "Deliveries currently running an analysis.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between enqueueing an analysis request and handling it.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	complianceScore := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "compliance_score_percent",
			Help:      "Compliance score of finished runs, cache hits included.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		},
		[]string{"service", "cache_hit"},
	)
	resultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "results_total",
			Help:      "Question results produced by finished runs.",
		},
		[]string{"service", "cache_hit"},
	)

	registry.MustRegister(deliveriesTotal, deliveryDuration, deliveriesInFlight, queueLag, complianceScore, resultsTotal)

	return &WorkerMetrics{
		registry:           registry,
		deliveriesTotal:    deliveriesTotal,
		deliveryDuration:   deliveryDuration,
		deliveriesInFlight: deliveriesInFlight,
		queueLag:           queueLag,
		complianceScore:    complianceScore,
		resultsTotal:       resultsTotal,
	}
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDelivery() {
	m.deliveriesInFlight.Inc()
}

// FinishDelivery records a delivery that ended with the given outcome label.
// Score and result counts are taken only from finished runs.
func (m *WorkerMetrics) FinishDelivery(service, outcomeLabel string, outcome domain.RunOutcome, duration time.Duration) {
	m.deliveriesInFlight.Dec()
	if outcomeLabel == "" {
		outcomeLabel = "unknown"
	}
	m.deliveriesTotal.WithLabelValues(service, outcomeLabel).Inc()
	m.deliveryDuration.WithLabelValues(service, outcomeLabel).Observe(duration.Seconds())

	if outcome.Status != domain.SessionCompleted {
		return
	}
	cacheHit := "false"
	if outcome.CacheHit {
		cacheHit = "true"
	}
	m.complianceScore.WithLabelValues(service, cacheHit).Observe(float64(outcome.ComplianceScore))
	m.resultsTotal.WithLabelValues(service, cacheHit).Add(float64(outcome.TotalResults))
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
