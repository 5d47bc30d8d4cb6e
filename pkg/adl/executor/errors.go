package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/state"
)

// Sentinel errors for step execution.
var (
	// ErrUnreachable indicates the backend for a node could not be reached
	// or does not exist.
	ErrUnreachable = errors.New("executor unreachable")

	// ErrTimeout indicates a node exceeded its configured timeout.
	ErrTimeout = errors.New("step timed out")

	// ErrRequestTooLarge indicates a serialized node exceeds the remote
	// request size limit.
	ErrRequestTooLarge = errors.New("request too large")

	// ErrNoHandler indicates the local backend has no handler for a node.
	ErrNoHandler = errors.New("no local handler")
)

// Cause classifies an execution failure so that every report carries a
// remediation expectation.
type Cause string

const (
	CauseStepFailed      Cause = "step_failed"
	CauseTimeout         Cause = "timeout"
	CauseUnreachable     Cause = "unreachable"
	CauseMissingInput    Cause = "missing_input"
	CausePanic           Cause = "panic"
	CauseRequestTooLarge Cause = "request_too_large"
	CauseCancelled       Cause = "cancelled"
)

// Remediation describes what an operator is expected to do.
func (c Cause) Remediation() string {
	switch c {
	case CauseTimeout:
		return "raise the step timeout or investigate the slow provider"
	case CauseUnreachable:
		return "check the backend name and that the executor endpoint is up"
	case CauseMissingInput:
		return "the producing step failed or was tolerated; fix it or drop the binding"
	case CausePanic:
		return "the step handler panicked; this is a handler bug"
	case CauseRequestTooLarge:
		return "reduce the size of the step inputs or prompt"
	case CauseCancelled:
		return "the run was cancelled; rerun when ready"
	default:
		return "inspect the step error; retries are governed by retry.max_attempts"
	}
}

// Classify maps an error to its Cause.
func Classify(err error) Cause {
	var missing *state.MissingInputError
	var panicErr *PanicError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return CauseTimeout
	case errors.Is(err, ErrUnreachable), errors.Is(err, ErrNoHandler):
		return CauseUnreachable
	case errors.Is(err, ErrRequestTooLarge):
		return CauseRequestTooLarge
	case errors.As(err, &missing):
		return CauseMissingInput
	case errors.As(err, &panicErr):
		return CausePanic
	case errors.Is(err, context.Canceled):
		return CauseCancelled
	default:
		return CauseStepFailed
	}
}

// ExecError reports a failed attempt of one node.
type ExecError struct {
	// NodeID is the node that failed.
	NodeID string
	// Attempt is the 1-based attempt number.
	Attempt int
	// Cause classifies Err.
	Cause Cause
	// Err is the underlying failure.
	Err error
}

func newExecError(nodeID string, attempt int, err error) *ExecError {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee
	}
	return &ExecError{NodeID: nodeID, Attempt: attempt, Cause: Classify(err), Err: err}
}

// NewExecError wraps err for nodeID and attempt. An error that already is an
// *ExecError is returned unchanged.
func NewExecError(nodeID string, attempt int, err error) *ExecError {
	return newExecError(nodeID, attempt, err)
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	return fmt.Sprintf("node %s attempt %d: %s: %v", e.NodeID, e.Attempt, e.Cause, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ExecError) Unwrap() error {
	return e.Err
}

// Remediation returns the remediation expectation for the failure.
func (e *ExecError) Remediation() string {
	return e.Cause.Remediation()
}

// PanicError captures a panic raised by a backend.
type PanicError struct {
	// NodeID is the node whose execution panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

func timeoutError(after time.Duration, cause error) error {
	return fmt.Errorf("%w after %s: %v", ErrTimeout, after, cause)
}
