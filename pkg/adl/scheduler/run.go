package scheduler

import (
	"time"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/state"
)

// Status is the terminal status of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// NodeStatus is a node's position in its lifecycle:
// pending → running → {succeeded, failed}, with failed resolved to
// tolerated or aborted, and never-started nodes of an aborted run
// resolved to cancelled.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeSucceeded NodeStatus = "succeeded"
	NodeTolerated NodeStatus = "tolerated"
	NodeAborted   NodeStatus = "aborted"
	NodeCancelled NodeStatus = "cancelled"
)

// Terminal reports whether s is final.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeSucceeded, NodeTolerated, NodeAborted, NodeCancelled:
		return true
	}
	return false
}

// satisfies reports whether a dependency in status s lets dependents run.
func (s NodeStatus) satisfies() bool {
	return s == NodeSucceeded || s == NodeTolerated
}

// StepFinished statuses written to the trace.
const (
	traceSuccess   = "success"
	traceRetrying  = "retrying"
	traceFailed    = "failed"
	traceTolerated = "tolerated"
	traceCancelled = "cancelled"
)

// StepOutcome is the final record of one node.
type StepOutcome struct {
	NodeID   string        `json:"node_id"`
	Status   NodeStatus    `json:"status"`
	Attempts int           `json:"attempts"`
	Wave     int           `json:"wave,omitempty"`
	Duration time.Duration `json:"duration"`
	Output   any           `json:"output,omitempty"`

	Error       string         `json:"error,omitempty"`
	Cause       executor.Cause `json:"cause,omitempty"`
	Remediation string         `json:"remediation,omitempty"`
}

// Run is the record of one execution of a plan. It is immutable once
// Execute returns.
type Run struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Target      string    `json:"target"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Concurrency int       `json:"concurrency"`
	Waves       int       `json:"waves"`
	AbortedBy   string    `json:"aborted_by,omitempty"`
	Error       string    `json:"error,omitempty"`

	// Outcomes holds one entry per plan node, sorted by node id.
	Outcomes []StepOutcome `json:"outcomes"`
	// State is the final state store snapshot, sorted by key.
	State []state.Entry `json:"state"`
}

// Duration returns the wall-clock duration of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome returns the outcome for nodeID.
func (r *Run) Outcome(nodeID string) (StepOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.NodeID == nodeID {
			return o, true
		}
	}
	return StepOutcome{}, false
}

// Count returns the number of outcomes with status s.
func (r *Run) Count(s NodeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}
