package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "rara"

var (
	// pipelineOutcomesTotal counts finished runs by outcome.
	// Labels:
	//   - outcome: analyzed, insufficient_text, or the error label
	//     (auth_error, download_error, extraction_error, ...)
	pipelineOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Total number of analysis runs by outcome",
		},
		[]string{"outcome"},
	)

	// pipelineDuration measures end-to-end run time, insufficient-text
	// short circuits excluded.
	pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Duration of analysis runs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90, 120, 180, 240},
		},
		[]string{"outcome"},
	)
)

const (
	outcomeAnalyzed     = "analyzed"
	outcomeInsufficient = "insufficient_text"
)

func recordOutcome(outcome string) {
	pipelineOutcomesTotal.WithLabelValues(outcome).Inc()
}

func recordDuration(outcome string, durationSeconds float64) {
	pipelineDuration.WithLabelValues(outcome).Observe(durationSeconds)
}
