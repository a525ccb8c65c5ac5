// Package pipeline runs one document analysis: fetch, extract, analyze.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/runixer/rara/internal/analysis"
	"github.com/runixer/rara/internal/apperr"
	"github.com/runixer/rara/internal/files"
	"github.com/runixer/rara/internal/lark"
	"github.com/runixer/rara/internal/trigger"
)

var errMissingFileToken = errors.New("file_token is required")

// Fetcher downloads a document from the drive.
type Fetcher interface {
	Fetch(ctx context.Context, ref lark.FileReference) (files.RawDocument, error)
}

// Extractor turns a downloaded document into plain text.
type Extractor interface {
	Extract(ctx context.Context, doc files.RawDocument) (string, error)
}

// Analyzer produces the analysis for extracted text.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error)
}

// Input is one normalised analysis request, whatever payload shape it came in.
type Input struct {
	File       lark.FileReference
	Title      string
	DocType    string
	Note       string
	Attachment string
}

// Outcome is a successful run. When Insufficient is set the analyzer was not
// called and Analysis is empty.
type Outcome struct {
	Analysis     string
	Insufficient bool
	Kind         files.Kind
	FileName     string
	TextChars    int
	Model        string
}

type Pipeline struct {
	fetcher      Fetcher
	extractor    Extractor
	analyzer     Analyzer
	minTextChars int
	timeout      time.Duration
	logger       *slog.Logger
}

// New creates a pipeline. minTextChars is the shortest trimmed text (in
// characters) worth sending to the analyzer; timeout bounds the whole run.
func New(logger *slog.Logger, fetcher Fetcher, extractor Extractor, analyzer Analyzer, minTextChars int, timeout time.Duration) *Pipeline {
	return &Pipeline{
		fetcher:      fetcher,
		extractor:    extractor,
		analyzer:     analyzer,
		minTextChars: minTextChars,
		timeout:      timeout,
		logger:       logger.With("component", "pipeline"),
	}
}

// Run executes the stages strictly in order and stops at the first error, so
// a failed stage never reaches the next one. Errors carry their apperr kind.
func (p *Pipeline) Run(ctx context.Context, in Input) (Outcome, error) {
	start := time.Now()
	logger := p.logger.With(
		"file_token", in.File.Token,
		"file_name", in.File.Name,
		"trigger", trigger.FromContext(ctx).String(),
	)

	if strings.TrimSpace(in.File.Token) == "" {
		err := apperr.Validation("parse request", errMissingFileToken)
		recordOutcome(apperr.Label(err))
		return Outcome{}, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	doc, err := p.fetcher.Fetch(ctx, in.File)
	if err != nil {
		return p.fail(logger, "fetch", apperr.Download("download file", err), start)
	}

	text, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		return p.fail(logger, "extract", apperr.Extraction("extract text", err), start)
	}

	outcome := Outcome{
		Kind:      doc.Kind,
		FileName:  doc.Name,
		TextChars: utf8.RuneCountInString(strings.TrimSpace(text)),
	}

	if outcome.TextChars < p.minTextChars {
		outcome.Insufficient = true
		recordOutcome(outcomeInsufficient)
		recordDuration(outcomeInsufficient, time.Since(start).Seconds())
		logger.Info("document has too little text to analyze",
			"kind", doc.Kind,
			"text_chars", outcome.TextChars,
			"min_text_chars", p.minTextChars,
		)
		return outcome, nil
	}

	res, err := p.analyzer.Analyze(ctx, analysis.Input{
		Text:       text,
		Title:      in.Title,
		DocType:    in.DocType,
		Note:       in.Note,
		Attachment: in.Attachment,
	})
	if err != nil {
		return p.fail(logger, "analyze", apperr.Completion("request analysis", err), start)
	}

	outcome.Analysis = res.Text
	outcome.Model = res.Model
	recordOutcome(outcomeAnalyzed)
	recordDuration(outcomeAnalyzed, time.Since(start).Seconds())
	logger.Info("document analyzed",
		"kind", doc.Kind,
		"size", doc.Size(),
		"text_chars", outcome.TextChars,
		"model", res.Model,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcome, nil
}

func (p *Pipeline) fail(logger *slog.Logger, stage string, err error, start time.Time) (Outcome, error) {
	outcome := apperr.Label(err)
	recordOutcome(outcome)
	recordDuration(outcome, time.Since(start).Seconds())
	logger.Error("pipeline stage failed",
		"stage", stage,
		"error_kind", apperr.Label(err),
		"error", err,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Outcome{}, err
}
