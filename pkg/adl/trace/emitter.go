package trace

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Sink receives events in emission order.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Emitter stamps events with a sequence number, a UTC timestamp and the
// elapsed time since the run started, then writes them to every sink.
// One Emitter serves one run.
type Emitter struct {
	mu    sync.Mutex
	sinks []Sink
	now   func() time.Time

	runID   string
	start   time.Time
	elapsed time.Duration
	seq     int
}

// NewEmitter creates an emitter that writes to sinks.
func NewEmitter(sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, now: time.Now}
}

// SetClock replaces the time source. It must be called before RunStarted.
func (em *Emitter) SetClock(now func() time.Time) {
	if now != nil {
		em.now = now
	}
}

// Elapsed returns the elapsed time stamped on the latest event.
func (em *Emitter) Elapsed() time.Duration {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.elapsed
}

// RunStarted starts the run clock and emits RunStarted.
func (em *Emitter) RunStarted(ctx context.Context, runID string, fields map[string]string) error {
	em.mu.Lock()
	em.runID = runID
	em.start = em.now()
	em.elapsed = 0
	em.seq = 0
	em.mu.Unlock()

	return em.emit(ctx, Event{Name: RunStarted, Fields: fields})
}

// StepStarted emits StepStarted for one dispatch of a node.
func (em *Emitter) StepStarted(ctx context.Context, nodeID string, wave, attempt int) error {
	return em.emit(ctx, Event{Name: StepStarted, NodeID: nodeID, Wave: wave, Attempt: attempt})
}

// StepFinished emits StepFinished for one dispatch of a node.
func (em *Emitter) StepFinished(ctx context.Context, nodeID string, wave, attempt int, status string, d time.Duration, err error) error {
	e := Event{
		Name:     StepFinished,
		NodeID:   nodeID,
		Wave:     wave,
		Attempt:  attempt,
		Status:   status,
		Duration: d,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return em.emit(ctx, e)
}

// RunFinished emits RunFinished with the terminal run status.
func (em *Emitter) RunFinished(ctx context.Context, status string, fields map[string]string) error {
	return em.emit(ctx, Event{Name: RunFinished, Status: status, Fields: fields})
}

func (em *Emitter) emit(ctx context.Context, e Event) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	now := em.now()
	elapsed := now.Sub(em.start)
	if elapsed < em.elapsed {
		elapsed = em.elapsed
	}
	em.elapsed = elapsed
	em.seq++

	e.Seq = em.seq
	e.RunID = em.runID
	e.Time = now.UTC()
	e.Elapsed = elapsed

	var errs []error
	for _, s := range em.sinks {
		if err := s.Write(ctx, cloneEvent(e)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
