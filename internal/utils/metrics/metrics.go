package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Generation metrics
	GenerationRequestsTotal   *prometheus.CounterVec
	GenerationRequestDuration *prometheus.HistogramVec
	GenerationTokensTotal     *prometheus.CounterVec
	ProviderHealth            *prometheus.GaugeVec

	// Dispatch metrics
	DispatchesTotal     *prometheus.CounterVec
	CreditsDebitedTotal *prometheus.CounterVec
	ValidationScore     prometheus.Histogram
	BatchQueueDepth     prometheus.Gauge
	AuditRecordsDropped prometheus.Counter

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered with reg.
// A nil reg registers with the default prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "creative"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		GenerationRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Total number of generation requests",
			},
			[]string{"model", "status"},
		),
		GenerationRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "request_duration_seconds",
				Help:      "Generation request duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
		GenerationTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "tokens_total",
				Help:      "Total number of tokens processed",
			},
			[]string{"model", "type"}, // type: input, output
		),
		ProviderHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "provider_health",
				Help:      "Provider health status (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),

		DispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "total",
				Help:      "Total number of dispatches by path and status",
			},
			[]string{"path", "status"},
		),
		CreditsDebitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "credits_debited_total",
				Help:      "Total credits debited from caller balances",
			},
			[]string{"kind"}, // kind: direct, cache_hit, batch
		),
		ValidationScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "validation",
				Name:      "score",
				Help:      "Distribution of content validation scores",
				Buckets:   []float64{50, 60, 70, 80, 85, 90, 95, 100},
			},
		),
		BatchQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "queue_depth",
				Help:      "Number of tasks waiting in the batch queue",
			},
		),
		AuditRecordsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "records_dropped_total",
				Help:      "Cost records dropped because the audit buffer was full",
			},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}
}

// RecordHTTPRequest records one served request under its route pattern.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGeneration records a generation request.
func (m *Metrics) RecordGeneration(model, status string, duration time.Duration) {
	m.GenerationRequestsTotal.WithLabelValues(model, status).Inc()
	m.GenerationRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordTokens records token usage.
func (m *Metrics) RecordTokens(model string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		m.GenerationTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.GenerationTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// SetProviderHealth sets the health status of a provider.
func (m *Metrics) SetProviderHealth(provider string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ProviderHealth.WithLabelValues(provider).Set(value)
}

// RecordDispatch records a finished or queued dispatch.
func (m *Metrics) RecordDispatch(path, status string) {
	if path == "" {
		path = "none"
	}
	m.DispatchesTotal.WithLabelValues(path, status).Inc()
}

// RecordCredits records credits debited for a settled dispatch.
func (m *Metrics) RecordCredits(kind string, credits int64) {
	if credits > 0 {
		m.CreditsDebitedTotal.WithLabelValues(kind).Add(float64(credits))
	}
}

// RecordValidationScore records a validation score.
func (m *Metrics) RecordValidationScore(score int) {
	m.ValidationScore.Observe(float64(score))
}

// SetBatchQueueDepth sets the batch queue depth.
func (m *Metrics) SetBatchQueueDepth(depth int) {
	m.BatchQueueDepth.Set(float64(depth))
}

// RecordAuditDrop records a dropped audit record.
func (m *Metrics) RecordAuditDrop() {
	m.AuditRecordsDropped.Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cache string) {
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cache string) {
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// statusClass buckets a status code into 2xx..5xx to keep label cardinality fixed.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
