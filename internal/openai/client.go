// Package openai is a minimal client for OpenAI-compatible chat completion APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/runixer/rara/internal/trigger"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error)
}

// truncateForLog truncates a string to maxLen characters for logging.
// Adds "... (truncated)" suffix if truncation occurred.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}

type clientImpl struct {
	httpClient  *http.Client
	apiKey      string
	apiEndpoint string
	logger      *slog.Logger
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Content returns the first choice's message content, or "" if there is none.
func (r ChatCompletionResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// APIError is a non-200 answer from the completion endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai API error: %s", e.Status)
	}
	return fmt.Sprintf("openai API error: %s: %s", e.Status, e.Message)
}

// Float returns a pointer to v, for optional request fields.
func Float(v float64) *float64 {
	return &v
}

// NewClient creates a client for the API at baseURL (e.g. https://api.openai.com/v1).
// timeout bounds every request end to end.
func NewClient(logger *slog.Logger, apiKey, proxyURL, baseURL string, timeout time.Duration) (Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   10,
	}

	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	clientLogger := logger.With("component", "openai_client")

	if proxyURL != "" {
		safeProxyURL := proxyURL
		if u, err := url.Parse(proxyURL); err == nil {
			if u.User != nil {
				u.User = url.UserPassword(u.User.Username(), "*****")
				safeProxyURL = u.String()
			}
		}
		clientLogger.Info("Using proxy for OpenAI", "proxy_url", safeProxyURL)
	}

	return &clientImpl{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		apiKey:      apiKey,
		apiEndpoint: baseURL,
		logger:      clientLogger,
	}, nil
}

// CreateChatCompletion sends one request. Failures are returned as they are;
// the caller decides whether anything is retried.
func (c *clientImpl) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	startTime := time.Now()
	tr := trigger.FromContext(ctx).String()

	contextChars := 0
	for _, msg := range req.Messages {
		contextChars += len(msg.Content)
	}

	c.logger.Info("Sending request to OpenAI",
		"model", req.Model,
		"message_count", len(req.Messages),
		"context_chars", contextChars,
		"estimated_tokens", contextChars/4,
		"trigger", tr,
	)

	body, err := json.Marshal(req)
	if err != nil {
		return ChatCompletionResponse{}, err
	}

	endpoint, err := url.JoinPath(c.apiEndpoint, "chat/completions")
	if err != nil {
		return ChatCompletionResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ChatCompletionResponse{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "rara/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		RecordLLMRequest(req.Model, time.Since(startTime).Seconds(), false, 0, 0, tr)
		c.logger.Error("OpenAI request failed", "error", err, "duration_ms", time.Since(startTime).Milliseconds())
		return ChatCompletionResponse{}, err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		RecordLLMRequest(req.Model, time.Since(startTime).Seconds(), false, 0, 0, tr)
		return ChatCompletionResponse{}, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("OpenAI response received", "status", resp.Status)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("OpenAI returned non-OK status", "status", resp.Status, "body", truncateForLog(string(responseBody), 2000))
		RecordLLMRequest(req.Model, time.Since(startTime).Seconds(), false, 0, 0, tr)
		return ChatCompletionResponse{}, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    apiErrorMessage(responseBody),
		}
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(responseBody, &chatResp); err != nil {
		c.logger.Error("Failed to decode OpenAI response", "error", err, "body_length", len(responseBody))
		RecordLLMRequest(req.Model, time.Since(startTime).Seconds(), false, 0, 0, tr)
		return ChatCompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if len(chatResp.Choices) > 0 {
		c.logger.Debug("OpenAI response content",
			"content_preview", truncateForLog(chatResp.Choices[0].Message.Content, 500),
			"finish_reason", chatResp.Choices[0].FinishReason,
		)
	}

	c.logger.Info("OpenAI response parsed successfully",
		"model", chatResp.Model,
		"choices", len(chatResp.Choices),
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
		"total_tokens", chatResp.Usage.TotalTokens,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	RecordLLMRequest(req.Model, time.Since(startTime).Seconds(), true, chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens, tr)

	return chatResp, nil
}

// apiErrorMessage pulls error.message out of an OpenAI error body.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return ""
}

// IsTimeout reports whether err is a client-side timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
