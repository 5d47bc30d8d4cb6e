// Package retry decides what happens to a node after a failed attempt.
//
// The decision depends only on the attempt count and the attempt budget.
// There is no backoff and no jitter: a retried node is simply dispatched
// again in the next wave.
package retry

import (
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
)

// Decision is the outcome of consulting the policy after a failure.
type Decision int

const (
	// Retry re-dispatches the node in the next wave.
	Retry Decision = iota
	// Exhausted resolves the node to failed.
	Exhausted
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Decide returns Retry when attempt < maxAttempts and Exhausted otherwise.
// attempt counts dispatches made so far, starting at 1. A maxAttempts below
// 1 is treated as 1.
func Decide(attempt, maxAttempts int) Decision {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if attempt < maxAttempts {
		return Retry
	}
	return Exhausted
}

// Resolution is what a failed node becomes once retries are exhausted.
type Resolution int

const (
	// Aborted ends the run; every unstarted node is cancelled.
	Aborted Resolution = iota
	// Tolerated records the failure and lets dependents run.
	Tolerated
)

// String returns the resolution name.
func (r Resolution) String() string {
	if r == Tolerated {
		return "tolerated"
	}
	return "aborted"
}

// Resolve maps an on_error setting to a resolution.
func Resolve(onError model.OnError) Resolution {
	if onError.Normalized() == model.OnErrorContinue {
		return Tolerated
	}
	return Aborted
}

// Policy bundles one node's retry budget and failure handling.
type Policy struct {
	MaxAttempts int
	OnError     model.OnError
}

// Decide applies Decide with the policy's budget.
func (p Policy) Decide(attempt int) Decision {
	return Decide(attempt, p.MaxAttempts)
}

// Resolve applies Resolve with the policy's on_error setting.
func (p Policy) Resolve() Resolution {
	return Resolve(p.OnError)
}
