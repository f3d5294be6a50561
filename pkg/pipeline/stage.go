// Package pipeline drives multi-stage jobs with weighted progress
// aggregation. A pipeline is an ordered list of named stages, each owning
// a share of the overall progress bar; stages report fractional progress
// through a ProgressSink and the runner maps it to a single monotonic
// 0..100 percentage for the job record.
package pipeline

import (
	"context"
	"fmt"
)

// ErrorKind categorizes a stage failure. Kinds are stable strings exposed
// in job error payloads and logs.
const (
	KindInvalidInput      = "invalid_input"
	KindToolMissing       = "tool_missing"
	KindToolFailed        = "tool_failed"
	KindModelLoad         = "model_load"
	KindMissingCredential = "missing_credential"
	KindBadResponse       = "bad_response"
	KindInternal          = "internal"
)

// StageError is the failure type every stage returns. Message is safe to
// show to clients; Err carries the underlying cause for logs.
type StageError struct {
	Kind    string
	Stage   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Stage, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError builds a StageError with an optional cause.
func NewStageError(kind, stage, message string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Message: message, Err: err}
}

// ProgressSink receives fractional progress from inside a stage. Fraction
// is clamped to [0,1]; an empty message keeps the previous one.
type ProgressSink interface {
	Report(fraction float64, message string)
}

// Notifier receives aggregated pipeline progress as an integer percentage.
type Notifier func(pct int, message string)

// StageFunc is the body of one pipeline stage. It reports progress through
// the sink and returns a *StageError on failure; any other error is wrapped
// as internal.
type StageFunc func(ctx context.Context, sink ProgressSink) error
