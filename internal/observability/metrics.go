package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haasonsaas/conduit/internal/infra"
)

// Metrics collects engine activity for Prometheus.
//
// Tracked:
//   - Exchange and pass counts (tool recursion shows up as passes per
//     exchange above 1)
//   - Tool execution patterns and latencies
//   - Stream errors by disposition (fatal vs. discarded-late)
//   - Routing corrections by provider pair
//
// All methods are nil-receiver safe so metrics stay optional in tests
// and library use.
type Metrics struct {
	// ExchangeCounter counts exchanges started.
	ExchangeCounter prometheus.Counter

	// PassCounter counts backend stream passes.
	PassCounter prometheus.Counter

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// StreamErrorCounter counts stream errors.
	// Labels: disposition (fatal|late_discarded)
	StreamErrorCounter *prometheus.CounterVec

	// RoutingCorrectionCounter counts provider corrections.
	// Labels: requested, selected
	RoutingCorrectionCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on the default
// Prometheus registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		ExchangeCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conduit_exchanges_total",
			Help: "Total number of exchanges started",
		}),

		PassCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conduit_passes_total",
			Help: "Total number of backend stream passes",
		}),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		StreamErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_stream_errors_total",
				Help: "Total number of stream errors by disposition",
			},
			[]string{"disposition"},
		),

		RoutingCorrectionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_routing_corrections_total",
				Help: "Total number of provider corrections by requested and selected provider",
			},
			[]string{"requested", "selected"},
		),
	}
}

// ExchangeStarted records the start of an exchange.
func (m *Metrics) ExchangeStarted() {
	if m == nil {
		return
	}
	m.ExchangeCounter.Inc()
}

// PassRun records one backend stream pass.
func (m *Metrics) PassRun() {
	if m == nil {
		return
	}
	m.PassCounter.Inc()
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordStreamError records a stream error and how it was handled.
func (m *Metrics) RecordStreamError(disposition string) {
	if m == nil {
		return
	}
	m.StreamErrorCounter.WithLabelValues(disposition).Inc()
}

// RecordRoutingCorrection records a provider correction.
func (m *Metrics) RecordRoutingCorrection(requested, selected string) {
	if m == nil {
		return
	}
	m.RoutingCorrectionCounter.WithLabelValues(requested, selected).Inc()
}

// RegisterCacheMetrics exposes a cache's counters as gauge functions.
func RegisterCacheMetrics(reg prometheus.Registerer, cache *infra.TTLCache[any]) {
	if reg == nil || cache == nil {
		return
	}

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "conduit_cache_entries",
			Help: "Live cache entries",
		}, func() float64 { return float64(cache.Stats().Size) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "conduit_cache_hits_total",
			Help: "Cache hits",
		}, func() float64 { return float64(cache.Stats().Hits) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "conduit_cache_misses_total",
			Help: "Cache misses",
		}, func() float64 { return float64(cache.Stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "conduit_cache_evictions_total",
			Help: "Entries removed by TTL expiry or invalidation",
		}, func() float64 { return float64(cache.Stats().Evicts) }),
	)
}
