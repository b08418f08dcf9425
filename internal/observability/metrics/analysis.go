package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

// AnalysisMetrics records pipeline, LLM, retrieval and breaker outcomes.
// It is shared by the api and worker binaries through their registries.
type AnalysisMetrics struct {
	service string

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	runsInFlight   prometheus.Gauge
	batchesTotal   *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	contextTotal   *prometheus.CounterVec
	llmCallsTotal  *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec
	llmTokensTotal *prometheus.CounterVec
	retrievalHits  *prometheus.HistogramVec
	noContextTotal *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	retriesTotal   *prometheus.CounterVec
}

func NewAnalysisMetrics(service string, registerer prometheus.Registerer) *AnalysisMetrics {
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Analysis runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "run_duration_seconds",
			Help:      "Analysis run duration in seconds by outcome.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"service", "outcome"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_in_flight",
			Help:      "Number of analysis runs in progress.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "batches_total",
			Help:      "Question batches sent to the model by outcome.",
		},
		[]string{"service", "outcome"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "batch_duration_seconds",
			Help:      "Question batch duration in seconds.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 120, 240},
		},
		[]string{"service", "outcome"},
	)
	contextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "question_context_total",
			Help:      "Questions by whether document context was found.",
		},
		[]string{"service", "found"},
	)
	llmCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Chat completion calls by endpoint pool and outcome.",
		},
		[]string{"service", "pool", "outcome"},
	)
	llmDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Chat completion call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "pool"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Token usage by pool and direction.",
		},
		[]string{"service", "pool", "direction"},
	)
	retrievalHits := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "hits",
			Help:      "Distribution of retrieved chunks per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "backend"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "no_context_total",
			Help:      "Searches that returned no chunks.",
		},
		[]string{"service", "backend"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried attempts per operation and reason.",
		},
		[]string{"service", "operation", "reason"},
	)

	registerer.MustRegister(
		runsTotal,
		runDuration,
		runsInFlight,
		batchesTotal,
		batchDuration,
		contextTotal,
		llmCallsTotal,
		llmDuration,
		llmTokensTotal,
		retrievalHits,
		noContextTotal,
		breakerState,
		retriesTotal,
	)

	return &AnalysisMetrics{
		service:        service,
		runsTotal:      runsTotal,
		runDuration:    runDuration,
		runsInFlight:   runsInFlight,
		batchesTotal:   batchesTotal,
		batchDuration:  batchDuration,
		contextTotal:   contextTotal,
		llmCallsTotal:  llmCallsTotal,
		llmDuration:    llmDuration,
		llmTokensTotal: llmTokensTotal,
		retrievalHits:  retrievalHits,
		noContextTotal: noContextTotal,
		breakerState:   breakerState,
		retriesTotal:   retriesTotal,
	}
}

func (m *AnalysisMetrics) RunStarted() {
	m.runsInFlight.Inc()
}

func (m *AnalysisMetrics) RunFinished(outcome string, elapsed time.Duration) {
	m.runsInFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.runsTotal.WithLabelValues(m.service, outcome).Inc()
	m.runDuration.WithLabelValues(m.service, outcome).Observe(elapsed.Seconds())
}

func (m *AnalysisMetrics) ObserveBatch(outcome string, _ int, elapsed time.Duration) {
	m.batchesTotal.WithLabelValues(m.service, outcome).Inc()
	m.batchDuration.WithLabelValues(m.service, outcome).Observe(elapsed.Seconds())
}

func (m *AnalysisMetrics) ObserveContext(found bool) {
	label := "false"
	if found {
		label = "true"
	}
	m.contextTotal.WithLabelValues(m.service, label).Inc()
}

func (m *AnalysisMetrics) ObserveLLMCall(pool, outcome string, duration time.Duration) {
	m.llmCallsTotal.WithLabelValues(m.service, pool, outcome).Inc()
	m.llmDuration.WithLabelValues(m.service, pool).Observe(duration.Seconds())
}

func (m *AnalysisMetrics) ObserveTokens(pool string, usage domain.TokenUsage) {
	if usage.PromptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, pool, "in").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, pool, "out").Add(float64(usage.CompletionTokens))
	}
}

func (m *AnalysisMetrics) RecordRetrieval(backend string, hits int) {
	m.retrievalHits.WithLabelValues(m.service, backend).Observe(float64(hits))
	if hits == 0 {
		m.noContextTotal.WithLabelValues(m.service, backend).Inc()
	}
}

// BreakerStateChange matches resilience.Config.OnStateChange.
func (m *AnalysisMetrics) BreakerStateChange(operation, _, to string) {
	value := 0.0
	switch to {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

// RecordRetry matches resilience.Config.OnRetry.
func (m *AnalysisMetrics) RecordRetry(operation string, _ int, rateLimited bool) {
	reason := "error"
	if rateLimited {
		reason = "rate_limited"
	}
	m.retriesTotal.WithLabelValues(m.service, operation, reason).Inc()
}
