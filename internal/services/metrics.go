package services

import "github.com/prometheus/client_golang/prometheus"

var (
	quotaDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_decisions_total",
			Help: "Usage ledger admissions by identity kind, mode and outcome.",
		},
		[]string{"kind", "mode", "outcome"},
	)
	quotaReleases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_releases_total",
			Help: "Reservations returned to the ledger after a failed run.",
		},
		[]string{"mode"},
	)
	chatReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_replies_total",
			Help: "Chat-on-report replies by source (llm or retrieval).",
		},
		[]string{"source"},
	)
	janitorSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "research_janitor_swept_total",
			Help: "Research records failed by the stale-run janitor.",
		},
	)
)

func init() {
	prometheus.MustRegister(quotaDecisions, quotaReleases, chatReplies, janitorSwept)
}
