package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(labels)
}

func TestMetricsRegistered(t *testing.T) {
	AnswersTotal.WithLabelValues("primary").Inc()
	GenerationRequestsTotal.WithLabelValues("primary", "ok").Inc()
	GenerationLatency.WithLabelValues("primary").Observe(0.2)
	ChunksTotal.WithLabelValues("stored").Add(3)
	IndexFallbacksTotal.WithLabelValues("hnsw", "ivf").Inc()
	HTTPRequestsTotal.WithLabelValues("/chat", "200").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}
	expected := map[string]bool{
		"rag_answers_total":              false,
		"rag_generation_requests_total":  false,
		"rag_generation_latency_seconds": false,
		"rag_ingested_chunks_total":      false,
		"rag_index_fallbacks_total":      false,
		"rag_http_requests_total":        false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, seen := range expected {
		if !seen {
			t.Errorf("metric %s not registered", name)
		}
	}

	if got := counterValue(t, "rag_ingested_chunks_total", map[string]string{"status": "stored"}); got < 3 {
		t.Errorf("stored chunks = %v, want >= 3", got)
	}
}
