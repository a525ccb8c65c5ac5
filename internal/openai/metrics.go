package openai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики для LLM клиента
//
// Метрики позволяют отслеживать:
// - Время выполнения LLM запросов
// - Использование токенов (prompt/completion)

const metricsNamespace = "rara"

var (
	// llmRequestDuration измеряет время выполнения LLM запросов.
	// Labels:
	//   - model: название модели
	//   - status: результат (success, error)
	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Duration of LLM API requests in seconds",
			// Buckets для типичных времён LLM: 0.5s - 120s
			Buckets: []float64{0.5, 1, 2, 3, 5, 7, 10, 15, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// llmRequestsTotal считает количество LLM запросов.
	// Labels:
	//   - model: название модели
	//   - status: результат (success, error)
	//   - trigger: источник запроса (webhook, direct)
	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of LLM API requests",
		},
		[]string{"model", "status", "trigger"},
	)

	// llmTokensTotal считает использованные токены.
	// Labels:
	//   - model: название модели
	//   - type: тип токенов (prompt, completion)
	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total number of tokens used for LLM requests",
		},
		[]string{"model", "type"},
	)
)

const (
	statusSuccess   = "success"
	statusError     = "error"
	tokenTypePrompt = "prompt"
	tokenTypeCompl  = "completion"
)

// RecordLLMRequest записывает метрики LLM запроса.
func RecordLLMRequest(model string, durationSeconds float64, success bool, promptTokens, completionTokens int, trigger string) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	llmRequestDuration.WithLabelValues(model, status).Observe(durationSeconds)
	llmRequestsTotal.WithLabelValues(model, status, trigger).Inc()

	if success {
		if promptTokens > 0 {
			llmTokensTotal.WithLabelValues(model, tokenTypePrompt).Add(float64(promptTokens))
		}
		if completionTokens > 0 {
			llmTokensTotal.WithLabelValues(model, tokenTypeCompl).Add(float64(completionTokens))
		}
	}
}
