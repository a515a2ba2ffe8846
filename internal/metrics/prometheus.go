package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts Decision Engine outcomes.
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_decisions_total",
			Help: "Response decisions by outcome",
		},
		[]string{"outcome"},
	)

	// Generations counts persisted generations by pipeline tier.
	Generations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_generations_total",
			Help: "Persisted generations by pipeline tier",
		},
		[]string{"tier"},
	)

	// ClassifierCalls counts intent classifications by path taken.
	ClassifierCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_classifier_calls_total",
			Help: "Intent classifications by path (keyword_miss, scored, keyword_only)",
		},
		[]string{"path"},
	)

	// Broadcasts counts event deliveries by event name and status.
	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_broadcasts_total",
			Help: "Broadcast deliveries by event and status",
		},
		[]string{"event", "status"},
	)

	// UpstreamFailures counts failed generative or persistence calls by kind.
	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_upstream_failures_total",
			Help: "Failed upstream calls by component and kind (transient, fatal, malformed)",
		},
		[]string{"component", "kind"},
	)
)
