package adl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/document"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/observability"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/runstore"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/scheduler"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/signing"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/trace"
)

// ErrNoSource indicates a Source with neither a path nor data.
var ErrNoSource = errors.New("source has no path or data")

// Source is a document to execute.
type Source struct {
	// Path is read when Data is nil. Its extension selects the format.
	Path string
	// Data holds the raw document. Name then supplies the extension.
	Data []byte
	Name string
	// Signature is the detached JWS over the raw document bytes.
	Signature []byte
}

func (s Source) filename() string {
	if s.Name != "" {
		return s.Name
	}
	return filepath.Base(s.Path)
}

// Engine ties loading, signing, compilation, scheduling and persistence
// together. The zero value is not usable: Backend is required.
type Engine struct {
	Backend  executor.Backend
	Verifier signing.Verifier
	// Store receives the run record after every run. Nil disables
	// persistence.
	Store runstore.Store
	Sinks []trace.Sink
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Concurrency overrides the document's run default when positive.
	Concurrency int

	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Load reads and parses src without checking its signature.
func (e *Engine) Load(src Source) (*model.Document, []byte, error) {
	data := src.Data
	if data == nil {
		if src.Path == "" {
			return nil, nil, ErrNoSource
		}
		var err error
		if data, err = document.ReadFile(src.Path); err != nil {
			return nil, nil, err
		}
	}
	doc, err := document.Parse(data, src.filename())
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// Compile loads src and compiles its run target. The signature is not
// checked: compiling executes nothing.
func (e *Engine) Compile(src Source) (*plan.Plan, error) {
	doc, _, err := e.Load(src)
	if err != nil {
		return nil, err
	}
	return plan.Compile(doc)
}

// Execute loads src, passes it through the signing gate, compiles it and
// runs the plan. The returned Run is non-nil once scheduling has started,
// including when the run aborts.
//
// A failure to persist the run record is logged and joined to the returned
// error; it never changes the run's status.
func (e *Engine) Execute(ctx context.Context, src Source, opts ...scheduler.Option) (*scheduler.Run, error) {
	if e.Backend == nil {
		return nil, scheduler.ErrNilBackend
	}
	doc, data, err := e.Load(src)
	if err != nil {
		return nil, err
	}
	if err := signing.Gate(ctx, e.Verifier, data, src.Signature); err != nil {
		e.logger().Error("document rejected", "source", src.filename(), "error", err.Error())
		return nil, err
	}
	p, err := plan.Compile(doc)
	if err != nil {
		return nil, err
	}

	base := []scheduler.Option{
		scheduler.WithLogger(e.logger()),
		scheduler.WithTraceSinks(e.Sinks...),
		scheduler.WithMetrics(e.Metrics),
		scheduler.WithSpans(e.Spans),
	}
	if e.Concurrency > 0 {
		base = append(base, scheduler.WithConcurrency(e.Concurrency))
	}
	run, runErr := scheduler.Execute(ctx, p, nil, e.Backend, append(base, opts...)...)
	if run == nil {
		return nil, runErr
	}

	if err := e.persist(ctx, run); err != nil {
		observability.LogPersistError(e.logger(), run.ID, err)
		return run, errors.Join(runErr, err)
	}
	return run, runErr
}

func (e *Engine) persist(ctx context.Context, run *scheduler.Run) error {
	if e.Store == nil {
		return nil
	}
	rec, err := runstore.NewRecord(run)
	if err != nil {
		return err
	}
	// The run may have ended because ctx was cancelled; the record is still
	// written.
	if err := e.Store.Save(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("persist run %s: %w", run.ID, err)
	}
	return nil
}
