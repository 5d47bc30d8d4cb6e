package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/observability"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/trace"
)

// DefaultConcurrency applies when neither the workflow nor the run sets a
// limit.
const DefaultConcurrency = 4

// Option configures Execute.
type Option func(*config)

type config struct {
	concurrency int
	runID       string
	logger      *slog.Logger
	sinks       []trace.Sink
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
	clock       func() time.Time
}

func defaultConfig() config {
	return config{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		clock:   time.Now,
	}
}

// WithConcurrency sets the run-level default limit, replacing the document's
// run default. A workflow-local limit still takes precedence.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithRunID sets the run id. By default a random UUID is used.
func WithRunID(id string) Option {
	return func(c *config) {
		c.runID = id
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTraceSinks adds sinks that receive the run's trace events.
func WithTraceSinks(sinks ...trace.Sink) Option {
	return func(c *config) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// WithMetrics enables metrics recording.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpans enables span creation for the run, its waves and node attempts.
func WithSpans(s observability.SpanManager) Option {
	return func(c *config) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithClock replaces the time source for timestamps and durations.
// The clock must be safe for concurrent use.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}

// EffectiveConcurrency resolves the limit for a run: the workflow-local
// override, else the run default, else DefaultConcurrency. Zero means unset.
func EffectiveConcurrency(workflow, run int) (int, error) {
	if workflow < 0 {
		return 0, fmt.Errorf("%w: workflow max_concurrency %d", ErrInvalidConcurrency, workflow)
	}
	if run < 0 {
		return 0, fmt.Errorf("%w: run max_concurrency %d", ErrInvalidConcurrency, run)
	}
	switch {
	case workflow > 0:
		return workflow, nil
	case run > 0:
		return run, nil
	default:
		return DefaultConcurrency, nil
	}
}
