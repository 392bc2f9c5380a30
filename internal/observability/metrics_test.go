package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/conduit/internal/infra"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ExchangeStarted()
	m.PassRun()
	m.RecordToolExecution("search", "success", 0.1)
	m.RecordStreamError("fatal")
	m.RecordRoutingCorrection("openai", "deepseek")
}

func TestRecordToolExecution(t *testing.T) {
	m := &Metrics{
		ToolExecutionCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_tool_executions_total"},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_tool_execution_duration_seconds"},
			[]string{"tool_name"},
		),
	}

	m.RecordToolExecution("search", "success", 0.25)
	m.RecordToolExecution("search", "error", 1.5)

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("search", "success")); got != 1 {
		t.Errorf("success count = %v", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("search", "error")); got != 1 {
		t.Errorf("error count = %v", got)
	}
}

func TestRegisterCacheMetrics(t *testing.T) {
	cache := infra.NewTTLCache[any](infra.CacheConfig{DefaultTTL: time.Minute})
	t.Cleanup(cache.Stop)

	reg := prometheus.NewRegistry()
	RegisterCacheMetrics(reg, cache)

	cache.Set("k", 1)
	cache.Get("k")
	cache.Get("missing")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	values := map[string]float64{}
	for _, fam := range families {
		if len(fam.GetMetric()) == 1 {
			values[fam.GetName()] = fam.GetMetric()[0].GetGauge().GetValue()
		}
	}
	for _, name := range []string{
		"conduit_cache_entries",
		"conduit_cache_hits_total",
		"conduit_cache_misses_total",
		"conduit_cache_evictions_total",
	} {
		if _, ok := values[name]; !ok {
			t.Errorf("collector %s not registered", name)
		}
	}

	if values["conduit_cache_entries"] != 1 {
		t.Errorf("entries = %v", values["conduit_cache_entries"])
	}
	if values["conduit_cache_hits_total"] != 1 || values["conduit_cache_misses_total"] != 1 {
		t.Errorf("hits=%v misses=%v", values["conduit_cache_hits_total"], values["conduit_cache_misses_total"])
	}
}
