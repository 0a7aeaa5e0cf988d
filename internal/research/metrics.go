package research

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// providerCalls counts provider searches by provider and outcome
	// (ok|empty|failed|timeout).
	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_provider_calls_total",
			Help: "Provider searches by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// stageLatency records pipeline stage durations by mode and stage.
	stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_stage_duration_seconds",
			Help:    "Duration of research pipeline stages in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"mode", "stage"},
	)

	// runOutcomes counts finished runs by mode and outcome.
	runOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_runs_total",
			Help: "Finished research runs by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	// synthesisRetries counts synthesis attempts that needed the strict retry.
	synthesisRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "research_synthesis_retries_total",
			Help: "Synthesis calls retried after a schema violation.",
		},
	)

	// enrichFetches counts deep-fetch attempts by source type and outcome.
	enrichFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_enrich_fetches_total",
			Help: "Deep-fetch attempts by source type and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(providerCalls, stageLatency, runOutcomes, synthesisRetries, enrichFetches)
}
