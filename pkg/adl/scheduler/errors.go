package scheduler

import (
	"errors"
	"fmt"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
)

// Sentinel errors for scheduling.
var (
	// ErrInvalidConcurrency indicates a concurrency limit below 1.
	ErrInvalidConcurrency = errors.New("concurrency limit must be at least 1")

	// ErrNilPlan indicates Execute was called without a plan.
	ErrNilPlan = errors.New("plan is nil")

	// ErrNilBackend indicates Execute was called without an executor backend.
	ErrNilBackend = errors.New("executor backend is nil")
)

// AbortError ends a run. NodeID names the node whose failure aborted the
// run; it is empty when the caller's context was cancelled.
type AbortError struct {
	NodeID string
	Err    error
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("run cancelled: %v", e.Err)
	}
	return fmt.Sprintf("run aborted by node %s: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AbortError) Unwrap() error {
	return e.Err
}

// Remediation returns the remediation expectation of the aborting failure.
func (e *AbortError) Remediation() string {
	return executor.Classify(e.Err).Remediation()
}

// CancelledError is recorded for nodes that never completed because the run
// was aborted. It is informational.
type CancelledError struct {
	NodeID    string
	AbortedBy string
	// Err is set when the caller's context ended the run.
	Err error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.AbortedBy != "" {
		return fmt.Sprintf("node %s cancelled: run aborted by %s", e.NodeID, e.AbortedBy)
	}
	if e.Err != nil {
		return fmt.Sprintf("node %s cancelled: %v", e.NodeID, e.Err)
	}
	return fmt.Sprintf("node %s cancelled", e.NodeID)
}

// Unwrap returns the context error, if any.
func (e *CancelledError) Unwrap() error {
	return e.Err
}
