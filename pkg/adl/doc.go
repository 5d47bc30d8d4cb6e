/*
Package adl executes agent workflow documents deterministically.

# Overview

A document declares providers, agents, tasks, workflows and patterns, and a
run target. The engine loads it, checks its signature, compiles the target
into a plan of nodes and runs the plan in waves:

  - the ready set of each wave is taken in lexicographic node id order,
    capped by the concurrency limit
  - the nodes of a wave run concurrently and the wave ends only when all of
    them have finished
  - state writes, retries, trace events and failure handling are applied
    after the wave in sorted order

The same document at the same concurrency limit therefore produces the same
trace shape and the same final state on every run.

# Basic Usage

	engine := &adl.Engine{
	    Backend:  executor.NewLocal(),
	    Verifier: signing.Insecure{},
	    Sinks:    []trace.Sink{trace.NewLineSink(os.Stdout)},
	}

	run, err := engine.Execute(ctx, adl.Source{Path: "flow.yaml"})
	if err != nil {
	    var abort *scheduler.AbortError
	    if errors.As(err, &abort) {
	        log.Printf("aborted by %s", abort.NodeID)
	    }
	}
	fmt.Println(run.Status)

# Failure Handling

A node that fails is retried up to its retry budget. When the budget is
exhausted, on_error: continue records the failure and lets dependents run;
on_error: fail (the default) lets the current wave finish, cancels every
node that has not started and ends the run with an *scheduler.AbortError.

# Packages

  - document: YAML, JSON and HCL loading
  - plan: compilation and plan introspection
  - scheduler: wave execution
  - executor: backends, including remote dispatch in executor/remote
  - state, trace, retry: run state, trace events and retry resolution
  - runstore: persisted run records
  - signing: the document signature gate
*/
package adl
