// Package analysis asks the language model for the structured document review.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/runixer/rara/internal/apperr"
	"github.com/runixer/rara/internal/config"
	"github.com/runixer/rara/internal/i18n"
	"github.com/runixer/rara/internal/openai"
)

var errEmptyContent = errors.New("model returned empty content")

// Input is the document text plus the optional metadata the caller sent along.
// Field names are referenced by the prompt.user template.
type Input struct {
	Text       string
	Title      string
	DocType    string
	Note       string
	Attachment string
}

// Request is the rendered prompt pair sent to the model.
type Request struct {
	System string
	User   string
}

// Result is the model's answer, returned verbatim.
type Result struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

type Analyzer struct {
	client      openai.Client
	translator  *i18n.Translator
	language    string
	model       string
	temperature float64
	logger      *slog.Logger
}

func NewAnalyzer(
	logger *slog.Logger,
	client openai.Client,
	translator *i18n.Translator,
	cfg config.OpenAIConfig,
	language string,
) *Analyzer {
	return &Analyzer{
		client:      client,
		translator:  translator,
		language:    language,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger.With("component", "analyzer"),
	}
}

// BuildRequest renders the system instruction and the user prompt for in.
// The prompts are rebuilt on every call.
func (a *Analyzer) BuildRequest(in Input) (Request, error) {
	system, err := a.translator.GetTemplate(a.language, "prompt.system", in)
	if err != nil {
		return Request{}, err
	}
	user, err := a.translator.GetTemplate(a.language, "prompt.user", in)
	if err != nil {
		return Request{}, err
	}
	return Request{System: system, User: user}, nil
}

// Analyze sends one completion request. Transport failures, API errors and an
// empty answer are completion errors; nothing is retried.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (Result, error) {
	const op = "request analysis"

	req, err := a.BuildRequest(in)
	if err != nil {
		return Result{}, apperr.Completion("render prompt", err)
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: openai.Float(a.temperature),
		Messages: []openai.Message{
			{Role: openai.RoleSystem, Content: req.System},
			{Role: openai.RoleUser, Content: req.User},
		},
	})
	if err != nil {
		a.logger.Error("analysis request failed",
			"model", a.model,
			"timeout", openai.IsTimeout(err),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return Result{}, apperr.Completion(op, err)
	}

	content := resp.Content()
	if strings.TrimSpace(content) == "" {
		a.logger.Warn("model returned empty analysis", "model", resp.Model, "choices", len(resp.Choices))
		return Result{}, apperr.Completion(op, errEmptyContent)
	}

	model := resp.Model
	if model == "" {
		model = a.model
	}

	a.logger.Info("analysis completed",
		"model", model,
		"text_chars", utf8.RuneCountInString(in.Text),
		"analysis_chars", utf8.RuneCountInString(content),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Result{
		Text:             content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
