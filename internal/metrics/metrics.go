// Package metrics holds the Prometheus collectors for the retrieval pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets covers generation latencies from 100ms to 2 minutes.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// AnswersTotal counts answered queries by outcome: primary, fallback or failed.
	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_answers_total",
			Help: "Answered queries by outcome",
		},
		[]string{"outcome"},
	)

	// GenerationRequestsTotal counts generation calls by generator and status (ok, error, empty).
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_generation_requests_total",
			Help: "Generation requests",
		},
		[]string{"generator", "status"},
	)

	// GenerationLatency records generation latency in seconds.
	GenerationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_generation_latency_seconds",
			Help:    "Generation latency",
			Buckets: LLMBuckets,
		},
		[]string{"generator"},
	)

	// ChunksTotal counts ingested chunks by status: stored, embed_failed, store_failed.
	ChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_ingested_chunks_total",
			Help: "Ingested chunks",
		},
		[]string{"status"},
	)

	// IndexFallbacksTotal counts vector index creations that degraded to another kind.
	IndexFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_index_fallbacks_total",
			Help: "Vector index kind fallbacks",
		},
		[]string{"requested", "actual"},
	)

	// HTTPRequestsTotal counts requests at the HTTP boundary by route and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"route", "code"},
	)
)

func init() {
	prometheus.MustRegister(
		AnswersTotal,
		GenerationRequestsTotal,
		GenerationLatency,
		ChunksTotal,
		IndexFallbacksTotal,
		HTTPRequestsTotal,
	)
}
