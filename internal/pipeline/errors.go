// Package pipeline implements the Pipeline Runner and Stage Worker Contract
// a linear composition of the eight named stages over a
// single JobContext, with progress accounted globally by the Progress
// Accountant and reported through the Job Registry and Event Bus.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
)

// ErrCancelled drives the CANCELLED terminal transition. It is never wrapped
// in a StageError: cancellation is not an error.
var ErrCancelled = errors.New("job cancelled")

// StageErrorKind classifies a StageError for the Runner's retry/fatal
// decision and is recorded verbatim in the terminal failure snapshot.
type StageErrorKind string

const (
	// KindTransient covers timeouts, 5xx, and transient network errors. The
	// Bounded Executor retries these per policy; the Runner itself does not
	// retry a whole stage, only the executor retries individual work items.
	KindTransient StageErrorKind = "transient"
	// KindPermanent covers 4xx from a dependency, irrecoverable parse
	// failure, and empty extraction. Never retried.
	KindPermanent StageErrorKind = "permanent"
	// KindStorage is always fatal.
	KindStorage StageErrorKind = "storage"
	// KindRegistry is fatal only when it surfaces from a result write; a
	// progress-write registry error never reaches this type.
	KindRegistry StageErrorKind = "registry"
	// KindInput covers malformed admission-time input; these should never
	// reach the Runner since the Admission Controller rejects them
	// synchronously, but the type exists so a defensive stage can still use
	// it if an invariant is violated upstream.
	KindInput StageErrorKind = "input"
)

// StageError is the typed error every stage worker returns on failure.
type StageError struct {
	Stage jobdomain.StageID
	Kind  StageErrorKind
	Msg   string
	Err   error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Stage, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Msg)
}

func (e *StageError) Unwrap() error { return e.Err }

// Fatal reports whether this error must terminate the job rather than be
// tolerated as a partial failure.
func (e *StageError) Fatal() bool {
	switch e.Kind {
	case KindStorage, KindRegistry, KindInput:
		return true
	default:
		return false
	}
}

func NewStageError(stage jobdomain.StageID, kind StageErrorKind, msg string, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Msg: msg, Err: err}
}

// PartialFailure records one stage's tolerated partial failure for
// inclusion in the final document's metadata.partial_failures[].
type PartialFailure struct {
	Stage jobdomain.StageID `json:"stage"`
	Count int               `json:"count"`
	Note  string            `json:"note,omitempty"`
}
