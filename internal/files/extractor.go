package files

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/runixer/rara/internal/apperr"
)

// decodeFunc converts raw document bytes into plain text.
type decodeFunc func(data []byte) (string, error)

// Extractor dispatches a RawDocument to the decoder for its Kind.
type Extractor struct {
	decoders map[Kind]decodeFunc
	logger   *slog.Logger
}

// NewExtractor creates an Extractor with the PDF, DOCX and plain-text decoders.
func NewExtractor(logger *slog.Logger) *Extractor {
	e := &Extractor{logger: logger.With("component", "text_extractor")}
	e.decoders = map[Kind]decodeFunc{
		KindPDF: func(data []byte) (string, error) {
			return extractPDF(e.logger, data)
		},
		KindDOCX:    extractDOCX,
		KindPlain:   extractPlain,
		KindUnknown: extractPlain,
	}
	return e
}

// Extract returns the plain text of doc.
//
// Empty text is not an error: scanned PDFs and empty files come back as ""
// and the caller decides what to do with short text. A PDF or DOCX the decoder
// cannot parse fails with an extraction error.
func (e *Extractor) Extract(ctx context.Context, doc RawDocument) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Extraction("extract "+string(doc.Kind), err)
	}

	kind := doc.Kind
	if kind == "" {
		kind = KindFromName(doc.Name)
	}
	decode, ok := e.decoders[kind]
	if !ok {
		decode = extractPlain
	}

	start := time.Now()
	text, err := decode(doc.Data)
	duration := time.Since(start)
	if err != nil {
		recordExtraction(kind, duration.Seconds(), 0, false)
		e.logger.Warn("text extraction failed",
			"kind", kind,
			"file_name", doc.Name,
			"size", doc.Size(),
			"error", err,
		)
		return "", apperr.Extraction(fmt.Sprintf("extract %s", kind), err)
	}

	chars := utf8.RuneCountInString(text)
	recordExtraction(kind, duration.Seconds(), chars, true)
	e.logger.Debug("text extracted",
		"kind", kind,
		"file_name", doc.Name,
		"size", doc.Size(),
		"chars", chars,
		"duration_ms", duration.Milliseconds(),
	)
	return text, nil
}

// extractPlain interprets the bytes as UTF-8. Valid input is returned unchanged;
// invalid sequences become U+FFFD.
func extractPlain(data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}
