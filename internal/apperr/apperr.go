// Package apperr defines the error kinds a document analysis can fail with
// and maps them to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuth       = errors.New("auth error")
	ErrDownload   = errors.New("download error")
	ErrExtraction = errors.New("extraction error")
	ErrCompletion = errors.New("completion error")
	ErrValidation = errors.New("validation error")
)

// Error ties a failure to the pipeline stage it happened in.
// Kind is one of the sentinels above; Err is the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) error {
	// Keep the innermost kind if a stage re-wraps an already classified error.
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Auth(op string, err error) error       { return newError(ErrAuth, op, err) }
func Download(op string, err error) error   { return newError(ErrDownload, op, err) }
func Extraction(op string, err error) error { return newError(ErrExtraction, op, err) }
func Completion(op string, err error) error { return newError(ErrCompletion, op, err) }
func Validation(op string, err error) error { return newError(ErrValidation, op, err) }

// KindOf returns the sentinel kind of err, or nil when err is not classified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// Label returns a short metrics-friendly name for the kind of err.
func Label(err error) string {
	switch KindOf(err) {
	case ErrAuth:
		return "auth_error"
	case ErrDownload:
		return "download_error"
	case ErrExtraction:
		return "extraction_error"
	case ErrCompletion:
		return "completion_error"
	case ErrValidation:
		return "validation_error"
	default:
		return "internal_error"
	}
}

func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Public renders err for the caller: operation and cause, without kind prefixes
// or anything beyond the error chain's messages.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Err == nil {
			return e.Op
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return err.Error()
}
