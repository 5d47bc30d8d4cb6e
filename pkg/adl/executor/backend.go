// Package executor defines the step execution capability the scheduler
// dispatches to, with an in-process implementation and a per-node router.
// The remote implementation lives in executor/remote.
package executor

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
)

// Request is one dispatch of one node.
type Request struct {
	RunID   string         `json:"run_id"`
	Attempt int            `json:"attempt"`
	Node    *plan.Node     `json:"node"`
	Inputs  map[string]any `json:"inputs"`
}

// Backend executes a single, fully resolved node. A returned error marks the
// attempt as failed; the scheduler applies the retry policy.
//
// Implementations must be safe for concurrent use: a wave dispatches several
// requests at once.
type Backend interface {
	Execute(ctx context.Context, req Request) (any, error)
}

// Func adapts a function to Backend.
type Func func(ctx context.Context, req Request) (any, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Call dispatches req to b, enforcing the node's timeout and recovering
// panics. Any failure is returned as *ExecError.
//
// When the timeout or ctx fires, Call cancels b's context and still waits
// for b to return, so a node only leaves its wave once its backend call has
// terminated. A backend that ignores its context holds the wave until it
// returns; its late result is discarded.
func Call(ctx context.Context, b Backend, req Request) (any, error) {
	nodeID := ""
	var timeout time.Duration
	if req.Node != nil {
		nodeID = req.Node.ID
		timeout = req.Node.Timeout
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &PanicError{NodeID: nodeID, Value: r, Stack: string(debug.Stack())}}
			}
		}()
		out, err := b.Execute(callCtx, req)
		done <- result{out: out, err: err}
	}()

	finish := func(r result) (any, error) {
		if r.err == nil {
			return r.out, nil
		}
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, newExecError(nodeID, req.Attempt, timeoutError(timeout, r.err))
		}
		return nil, newExecError(nodeID, req.Attempt, r.err)
	}

	select {
	case r := <-done:
		return finish(r)
	case <-callCtx.Done():
		// A backend that returned just as the context ended still wins.
		select {
		case r := <-done:
			return finish(r)
		default:
		}
		<-done
		if ctx.Err() == nil {
			return nil, newExecError(nodeID, req.Attempt, timeoutError(timeout, callCtx.Err()))
		}
		return nil, newExecError(nodeID, req.Attempt, ctx.Err())
	}
}
