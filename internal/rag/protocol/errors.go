package protocol

import (
	"errors"
	"fmt"
)

// ErrCancelled is the sentinel observed at a suspension point once a
// RequestContext's cancellation flag has been set. The orchestrator
// converts it to a single rag.done{cancelled} event with no rag.error.
var ErrCancelled = errors.New("rag: request cancelled")

// InvalidArgumentError models a rejected option combination, raised
// synchronously at the call site (e.g. fts.mode=strict without
// allow_strict). Surfaced as rag.error when it escapes a step.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string { return e.Message }

// NewInvalidArgument constructs an InvalidArgumentError.
func NewInvalidArgument(format string, args ...any) error {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}

// RequiredStepFailedError carries the id of a required step that returned
// a failed status. Causes {rag.error, step_id} then {rag.done, error}.
type RequiredStepFailedError struct {
	StepID  string
	Message string
}

func (e *RequiredStepFailedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("rag: required step %q failed", e.StepID)
}

// NewRequiredStepFailed constructs a RequiredStepFailedError.
func NewRequiredStepFailed(stepID, message string) error {
	return &RequiredStepFailedError{StepID: stepID, Message: message}
}
