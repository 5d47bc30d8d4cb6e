// Package scheduler executes a compiled plan in deterministic waves.
//
// Each wave takes the ready nodes in lexicographic id order, up to the
// concurrency limit, dispatches them concurrently and waits for all of them.
// State writes, retries, trace events and abort decisions are applied after
// the barrier in sorted order, so two runs of the same plan at the same
// limit produce the same trace and the same final state regardless of
// completion timing.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/observability"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/retry"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/state"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/trace"
)

type nodeState struct {
	node     *plan.Node
	status   NodeStatus
	attempts int
	wave     int
	duration time.Duration
	output   any
	err      error
}

type attemptResult struct {
	output   any
	err      error
	duration time.Duration
}

type scheduler struct {
	plan    *plan.Plan
	store   *state.Store
	backend executor.Backend
	cfg     config
	limit   int
	runID   string
	emitter *trace.Emitter

	order []string
	nodes map[string]*nodeState
}

// Execute runs p to completion against store and backend.
//
// The returned Run is always non-nil once scheduling has started. The error
// is an *AbortError when a node failed under on_error: fail or ctx was
// cancelled; tolerated failures do not produce an error.
func Execute(ctx context.Context, p *plan.Plan, store *state.Store, backend executor.Backend, opts ...Option) (*Run, error) {
	if p == nil {
		return nil, ErrNilPlan
	}
	if backend == nil {
		return nil, ErrNilBackend
	}
	if store == nil {
		store = state.NewStore()
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	runDefault := p.RunConcurrency()
	if cfg.concurrency != 0 {
		runDefault = cfg.concurrency
	}
	limit, err := EffectiveConcurrency(p.WorkflowConcurrency(), runDefault)
	if err != nil {
		return nil, err
	}

	s := &scheduler{
		plan:    p,
		store:   store,
		backend: backend,
		cfg:     cfg,
		limit:   limit,
		runID:   cfg.runID,
		nodes:   make(map[string]*nodeState, p.Len()),
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	s.emitter = trace.NewEmitter(cfg.sinks...)
	s.emitter.SetClock(cfg.clock)

	for _, n := range p.Nodes() {
		s.order = append(s.order, n.ID)
		s.nodes[n.ID] = &nodeState{node: n, status: NodePending}
	}
	return s.run(ctx)
}

func (s *scheduler) run(ctx context.Context) (*Run, error) {
	started := s.cfg.clock()
	logger := s.cfg.logger

	ctx, runSpan := s.cfg.spans.StartRunSpan(ctx, s.plan.Target(), s.runID)

	s.emit(s.emitter.RunStarted(ctx, s.runID, map[string]string{
		"target":      s.plan.Target(),
		"nodes":       strconv.Itoa(s.plan.Len()),
		"concurrency": strconv.Itoa(s.limit),
	}))
	observability.LogRunStart(logger, s.runID, s.plan.Target(), s.plan.Len(), s.limit)

	var abort *AbortError
	wave := 0
	for {
		if err := ctx.Err(); err != nil {
			abort = &AbortError{Err: err}
			break
		}
		ready := s.ready()
		if len(ready) == 0 {
			break
		}
		if len(ready) > s.limit {
			ready = ready[:s.limit]
		}
		wave++
		if nodeID, err := s.runWave(ctx, wave, ready); nodeID != "" {
			abort = &AbortError{NodeID: nodeID, Err: err}
			break
		}
	}

	cancelled := s.cancelRemaining(abort)
	finished := s.cfg.clock()

	rec := s.record(started, finished, wave)
	fields := map[string]string{"waves": strconv.Itoa(wave)}
	if cancelled > 0 {
		fields["cancelled"] = strconv.Itoa(cancelled)
	}
	if abort != nil {
		rec.Status = StatusFailure
		rec.AbortedBy = abort.NodeID
		rec.Error = abort.Error()
		if abort.NodeID != "" {
			fields["aborted_by"] = abort.NodeID
		} else {
			fields["reason"] = abort.Err.Error()
		}
	}
	if abort == nil && cancelled > 0 {
		rec.Status = StatusFailure
	}
	if t := rec.Count(NodeTolerated); t > 0 {
		fields["tolerated"] = strconv.Itoa(t)
	}
	s.emit(s.emitter.RunFinished(ctx, string(rec.Status), fields))

	s.cfg.metrics.RecordRun(ctx, string(rec.Status), rec.Duration(), cancelled)
	if abort != nil {
		observability.LogRunAbort(logger, s.runID, abort.NodeID, abort.Err, cancelled)
		s.cfg.spans.EndSpanWithError(runSpan, abort)
		return rec, abort
	}
	observability.LogRunComplete(logger, s.runID, string(rec.Status), float64(rec.Duration().Milliseconds()), wave)
	s.cfg.spans.EndSpanWithError(runSpan, nil)
	return rec, nil
}

// ready returns the pending nodes whose dependencies all succeeded or were
// tolerated, in sorted id order.
func (s *scheduler) ready() []string {
	var ready []string
	for _, id := range s.order {
		ns := s.nodes[id]
		if ns.status != NodePending {
			continue
		}
		ok := true
		for _, dep := range ns.node.Dependencies {
			if !s.nodes[dep].status.satisfies() {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// runWave dispatches batch and applies the results in sorted order. It
// returns the id and error of the first node that aborts the run.
func (s *scheduler) runWave(ctx context.Context, wave int, batch []string) (string, error) {
	wctx, waveSpan := s.cfg.spans.StartWaveSpan(ctx, wave, len(batch))
	defer s.cfg.spans.EndSpanWithError(waveSpan, nil)

	observability.LogWave(s.cfg.logger, wave, batch)
	s.cfg.metrics.RecordWave(ctx, len(batch))

	for _, id := range batch {
		ns := s.nodes[id]
		ns.status = NodeRunning
		ns.attempts++
		ns.wave = wave
		s.emit(s.emitter.StepStarted(wctx, id, wave, ns.attempts))
		observability.LogNodeStart(s.nodeLogger(id, ns.attempts), id)
	}

	results := make([]attemptResult, len(batch))
	g := new(errgroup.Group)
	g.SetLimit(s.limit)
	for i, id := range batch {
		ns := s.nodes[id]
		attempt := ns.attempts
		g.Go(func() error {
			results[i] = s.dispatch(wctx, ns.node, attempt)
			return nil
		})
	}
	_ = g.Wait()

	ctxErr := ctx.Err()
	var abortNode string
	var abortErr error
	for i, id := range batch {
		ns := s.nodes[id]
		r := results[i]
		ns.duration += r.duration
		logger := s.nodeLogger(id, ns.attempts)

		if r.err == nil && ns.node.SaveAs != "" {
			if err := s.store.Put(ns.node.SaveAs, id, r.output); err != nil {
				r.err = executor.NewExecError(id, ns.attempts, err)
			}
		}

		status := s.resolve(ns, r, ctxErr)
		s.cfg.metrics.RecordNodeAttempt(ctx, id, status, r.duration)
		s.emit(s.emitter.StepFinished(wctx, id, wave, ns.attempts, status, r.duration, r.err))

		switch ns.status {
		case NodeSucceeded:
			observability.LogNodeComplete(logger, id, float64(r.duration.Milliseconds()))
		case NodePending:
			observability.LogNodeRetry(logger, id, ns.attempts, ns.node.MaxAttempts, r.err)
		case NodeTolerated:
			observability.LogNodeError(logger, id, retry.Tolerated.String(), r.err)
		case NodeAborted:
			observability.LogNodeError(logger, id, retry.Aborted.String(), r.err)
			if abortNode == "" {
				abortNode, abortErr = id, r.err
			}
		}
	}
	return abortNode, abortErr
}

// resolve applies one attempt result to ns and returns the trace status.
// ctxErr is the run context's error after the wave; a failure caused by it
// cancels the node instead of charging it to the retry policy.
func (s *scheduler) resolve(ns *nodeState, r attemptResult, ctxErr error) string {
	if r.err == nil {
		ns.status = NodeSucceeded
		ns.output = r.output
		ns.err = nil
		return traceSuccess
	}
	ns.err = r.err

	if ctxErr != nil && (errors.Is(r.err, ctxErr) || executor.Classify(r.err) == executor.CauseCancelled) {
		ns.status = NodeCancelled
		return traceCancelled
	}

	policy := retry.Policy{MaxAttempts: ns.node.MaxAttempts, OnError: ns.node.OnError}
	if policy.Decide(ns.attempts) == retry.Retry {
		ns.status = NodePending
		return traceRetrying
	}
	if policy.Resolve() == retry.Tolerated {
		ns.status = NodeTolerated
		return traceTolerated
	}
	ns.status = NodeAborted
	return traceFailed
}

// dispatch runs one attempt of node. It is called concurrently; it only
// reads the store.
func (s *scheduler) dispatch(ctx context.Context, node *plan.Node, attempt int) attemptResult {
	ctx, span := s.cfg.spans.StartNodeSpan(ctx, node.ID, attempt)
	start := s.cfg.clock()

	var out any
	inputs, err := s.store.Resolve(node.Inputs)
	if err != nil {
		err = executor.NewExecError(node.ID, attempt, err)
	} else {
		s.cfg.spans.AddSpanEvent(ctx, "dispatched",
			attribute.String("backend", node.Backend),
			attribute.Int("inputs", len(inputs)),
		)
		out, err = executor.Call(ctx, s.backend, executor.Request{
			RunID:   s.runID,
			Attempt: attempt,
			Node:    node,
			Inputs:  inputs,
		})
	}

	d := s.cfg.clock().Sub(start)
	s.cfg.spans.EndSpanWithError(span, err)
	return attemptResult{output: out, err: err, duration: d}
}

// cancelRemaining resolves every node that has not finished to cancelled.
func (s *scheduler) cancelRemaining(abort *AbortError) int {
	n := 0
	for _, id := range s.order {
		ns := s.nodes[id]
		if ns.status.Terminal() {
			if ns.status == NodeCancelled {
				n++
			}
			continue
		}
		ns.status = NodeCancelled
		ce := &CancelledError{NodeID: id}
		if abort != nil {
			ce.AbortedBy = abort.NodeID
			if abort.NodeID == "" {
				ce.Err = abort.Err
			}
		}
		ns.err = ce
		n++
	}
	return n
}

func (s *scheduler) record(started, finished time.Time, waves int) *Run {
	rec := &Run{
		ID:          s.runID,
		Name:        s.plan.Name(),
		Target:      s.plan.Target(),
		Status:      StatusSuccess,
		StartedAt:   started.UTC(),
		FinishedAt:  finished.UTC(),
		Concurrency: s.limit,
		Waves:       waves,
		Outcomes:    make([]StepOutcome, 0, len(s.order)),
		State:       s.store.Snapshot(),
	}
	if fp, err := s.plan.Fingerprint(); err == nil {
		rec.Fingerprint = fp
	} else if s.cfg.logger != nil {
		s.cfg.logger.Warn("plan fingerprint failed", "run_id", s.runID, "error", err.Error())
	}

	for _, id := range s.order {
		ns := s.nodes[id]
		o := StepOutcome{
			NodeID:   id,
			Status:   ns.status,
			Attempts: ns.attempts,
			Wave:     ns.wave,
			Duration: ns.duration,
			Output:   ns.output,
		}
		if ns.err != nil {
			o.Error = ns.err.Error()
			o.Cause = executor.Classify(ns.err)
			if ns.status == NodeCancelled {
				o.Cause = executor.CauseCancelled
			}
			o.Remediation = o.Cause.Remediation()
		}
		rec.Outcomes = append(rec.Outcomes, o)
	}
	return rec
}

func (s *scheduler) nodeLogger(nodeID string, attempt int) *slog.Logger {
	return observability.EnrichLogger(s.cfg.logger, s.runID, nodeID, attempt)
}

func (s *scheduler) emit(err error) {
	if err != nil && s.cfg.logger != nil {
		s.cfg.logger.Warn("trace sink write failed", "run_id", s.runID, "error", err.Error())
	}
}
