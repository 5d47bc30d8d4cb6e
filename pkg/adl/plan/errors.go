package plan

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel reasons for compile failures. Every CompileError unwraps to one
// of these.
var (
	// ErrUnknownTarget indicates the run names no workflow or pattern, names
	// both, or names one that does not exist.
	ErrUnknownTarget = errors.New("unknown run target")

	// ErrUnresolvedReference indicates a task, agent, provider, tool or
	// dependency symbol that does not exist.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrDuplicateStepID indicates two nodes resolved to the same id.
	ErrDuplicateStepID = errors.New("duplicate step id")

	// ErrReservedStepID indicates an authored id uses the pattern namespace.
	ErrReservedStepID = errors.New("reserved step id")

	// ErrDuplicateSaveAs indicates two nodes write the same state key.
	ErrDuplicateSaveAs = errors.New("duplicate save_as key")

	// ErrUnsatisfiedStateRef indicates an @state reference that no causal
	// predecessor writes, or one with an empty key.
	ErrUnsatisfiedStateRef = errors.New("unsatisfied state reference")

	// ErrCycle indicates the dependency relation is not acyclic.
	ErrCycle = errors.New("dependency cycle")

	// ErrInvalidConcurrency indicates a negative concurrency override.
	ErrInvalidConcurrency = errors.New("invalid concurrency limit")

	// ErrInvalidPattern indicates a pattern whose shape cannot be expanded.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrInvalidField indicates an enumerated field with an unknown value.
	ErrInvalidField = errors.New("invalid field value")
)

// CompileError identifies the node and field that failed compile-time
// validation. Node is empty for plan-level failures.
type CompileError struct {
	// Node is the full id of the offending node, if any.
	Node string
	// Field is the document field at fault ("task", "depends_on", ...).
	Field string
	// Reason is one of the package sentinels.
	Reason error
	// Detail describes the specific problem.
	Detail string
	// Cycle holds the offending path for ErrCycle, first node repeated last.
	Cycle []string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile")
	if e.Node != "" {
		fmt.Fprintf(&b, ": node %q", e.Node)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %s", e.Field)
	}
	fmt.Fprintf(&b, ": %v", e.Reason)
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Cycle, " -> "))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// Unwrap returns the sentinel reason for errors.Is support.
func (e *CompileError) Unwrap() error {
	return e.Reason
}

// CompileErrors flattens err into the CompileErrors it carries, in the order
// they were reported.
func CompileErrors(err error) []*CompileError {
	var out []*CompileError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ce, ok := e.(*CompileError); ok {
			out = append(out, ce)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
