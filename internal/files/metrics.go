package files

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "rara"

var (
	// extractDuration measures time spent turning document bytes into text.
	// Labels:
	//   - kind: pdf, docx, plain, unknown
	//   - status: success or error
	extractDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "extract",
			Name:      "duration_seconds",
			Help:      "Duration of document text extraction in seconds",
			// Plain text is near-instant, large PDFs take seconds.
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind", "status"},
	)

	// extractChars measures how much text a document yielded.
	// Labels:
	//   - kind: document kind
	extractChars = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "extract",
			Name:      "chars",
			Help:      "Number of characters extracted per document",
			// 0 and tiny values are scans/empty files, which end in the short-text notice.
			Buckets: []float64{0, 20, 100, 1000, 5000, 20000, 50000, 100000, 250000},
		},
		[]string{"kind"},
	)
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// recordExtraction records metrics for one extraction.
func recordExtraction(kind Kind, durationSeconds float64, chars int, success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	extractDuration.WithLabelValues(string(kind), status).Observe(durationSeconds)
	if success {
		extractChars.WithLabelValues(string(kind)).Observe(float64(chars))
	}
}
