package lark

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики для Lark клиента
//
// Метрики позволяют отслеживать:
// - Запросы tenant_access_token и попадания в кэш
// - Время и размер загрузок файлов из Drive

const metricsNamespace = "rara"

var (
	// tokenRequestsTotal считает запросы tenant_access_token к Lark.
	// Labels:
	//   - status: success, error, timeout
	tokenRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "lark",
			Name:      "token_requests_total",
			Help:      "Total number of tenant_access_token requests",
		},
		[]string{"status"},
	)

	tokenRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "lark",
			Name:      "token_request_duration_seconds",
			Help:      "Duration of tenant_access_token requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// tokenCacheTotal считает обращения к кэшу токена.
	// Labels:
	//   - result: hit, miss
	tokenCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "lark",
			Name:      "token_cache_total",
			Help:      "Tenant token cache lookups by result",
		},
		[]string{"result"},
	)

	// downloadDuration измеряет время загрузки файлов из Drive.
	// Labels:
	//   - status: success, error, timeout
	downloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "lark",
			Name:      "download_duration_seconds",
			Help:      "Duration of Lark Drive file downloads in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20, 30, 60},
		},
		[]string{"status"},
	)

	// downloadSizeBytes измеряет размер загруженных файлов.
	downloadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "lark",
			Name:      "download_size_bytes",
			Help:      "Size of downloaded Lark Drive files in bytes",
			// 10KB, 50KB, 100KB, 500KB, 1MB, 5MB, 10MB, 20MB, 50MB
			Buckets: []float64{10240, 51200, 102400, 512000, 1048576, 5242880, 10485760, 20971520, 52428800},
		},
	)
)

const (
	statusSuccess = "success"
	statusError   = "error"
	statusTimeout = "timeout"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

func recordTokenRequest(status string, durationSeconds float64) {
	tokenRequestsTotal.WithLabelValues(status).Inc()
	tokenRequestDuration.Observe(durationSeconds)
}

func recordTokenCache(result string) {
	tokenCacheTotal.WithLabelValues(result).Inc()
}

// recordDownload записывает метрики загрузки файла.
func recordDownload(status string, durationSeconds float64, sizeBytes int) {
	downloadDuration.WithLabelValues(status).Observe(durationSeconds)
	if status == statusSuccess && sizeBytes > 0 {
		downloadSizeBytes.Observe(float64(sizeBytes))
	}
}
