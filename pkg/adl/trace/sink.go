package trace

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// LineSink writes one formatted line per event to an io.Writer.
type LineSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineSink creates a sink over w.
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: w}
}

// Write implements Sink.
func (s *LineSink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.w, Format(e)+"\n"); err != nil {
		return fmt.Errorf("write trace line: %w", err)
	}
	return nil
}

// FileSink appends trace lines to a file.
type FileSink struct {
	*LineSink
	f *os.File
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileSink{LineSink: NewLineSink(f), f: f}, nil
}

// Close syncs and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("sync trace file: %w", err)
	}
	return s.f.Close()
}

// MemorySink keeps events in memory and returns copies.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write implements Sink.
func (s *MemorySink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cloneEvent(e))
	return nil
}

// Events returns a snapshot of every event written so far.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, len(s.events))
	for i, e := range s.events {
		out[i] = cloneEvent(e)
	}
	return out
}

// SpanSink records each event as an event on the span carried by the
// context passed to Write. It is a no-op when that span is not recording.
type SpanSink struct{}

// Write implements Sink.
func (SpanSink) Write(ctx context.Context, e Event) error {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}

	attrs := []attribute.KeyValue{
		attribute.Int("trace.seq", e.Seq),
		attribute.Int64("trace.elapsed_ms", e.Elapsed.Milliseconds()),
	}
	if e.NodeID != "" {
		attrs = append(attrs,
			attribute.String("node.id", e.NodeID),
			attribute.Int("node.wave", e.Wave),
			attribute.Int("node.attempt", e.Attempt),
		)
	}
	if e.Status != "" {
		attrs = append(attrs, attribute.String("status", e.Status))
	}
	if e.Name == StepFinished {
		attrs = append(attrs, attribute.Int64("duration_ms", e.Duration.Milliseconds()))
	}
	if e.Error != "" {
		attrs = append(attrs, attribute.String("error", e.Error))
	}
	span.AddEvent(string(e.Name), oteltrace.WithTimestamp(e.Time), oteltrace.WithAttributes(attrs...))
	return nil
}
