package search

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/pulseboard/internal/progress"
)

// Sentinel errors for the kinds of run failure.
var (
	ErrInvalidRequest    = errors.New("invalid search request")
	ErrJobCreationFailed = errors.New("search job creation failed")
	ErrCollectionTimeout = errors.New("post collection timed out")
	ErrTransport         = errors.New("backend transport failure")
	ErrRunNotFound       = errors.New("search run not found")
	ErrAnalysisNotFound  = errors.New("no stored analysis for job")
)

// Kind classifies a run failure.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindJobCreation       Kind = "job_creation_failed"
	KindCollectionTimeout Kind = "collection_timeout"
	KindTransport         Kind = "transport_failure"
)

var kindSentinel = map[Kind]error{
	KindInvalidRequest:    ErrInvalidRequest,
	KindJobCreation:       ErrJobCreationFailed,
	KindCollectionTimeout: ErrCollectionTimeout,
	KindTransport:         ErrTransport,
}

// userMessages are shown to the end user. They are fixed per kind; the
// diagnostic goes in RunError.Detail.
var userMessages = map[Kind]string{
	KindInvalidRequest:    "Enter a search term or a job ID to start.",
	KindJobCreation:       "We couldn't start your search. Please try again.",
	KindCollectionTimeout: "Collecting posts is taking too long. Please try again in a moment.",
	KindTransport:         "The analysis service is unavailable right now. Please try again later.",
}

// RunError is the single error a failed run returns. It matches both its
// kind sentinel and the underlying cause with errors.Is.
type RunError struct {
	Kind   Kind
	Stage  progress.Stage
	Detail string
	Err    error
}

func newRunError(kind Kind, stage progress.Stage, err error, format string, args ...any) *RunError {
	detail := fmt.Sprintf(format, args...)
	if err != nil {
		detail = fmt.Sprintf("%s: %v", detail, err)
	}
	return &RunError{Kind: kind, Stage: stage, Detail: detail, Err: err}
}

func (e *RunError) Error() string {
	return fmt.Sprintf("search run failed during %s (%s): %s", e.Stage, e.Kind, e.Detail)
}

func (e *RunError) Unwrap() []error {
	errs := []error{kindSentinel[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// UserMessage returns the fixed user-facing text for the error's kind.
func (e *RunError) UserMessage() string {
	return userMessages[e.Kind]
}
