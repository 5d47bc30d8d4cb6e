package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every instrument.
const MeterName = "adl"

// MetricsRecorder records run metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeAttempt records one dispatch of a node. status is the
	// attempt status: success, retrying, failed or tolerated.
	RecordNodeAttempt(ctx context.Context, nodeID, status string, duration time.Duration)

	// RecordWave records the number of nodes dispatched in a wave.
	RecordWave(ctx context.Context, size int)

	// RecordRun records a finished run.
	RecordRun(ctx context.Context, status string, duration time.Duration, cancelled int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeAttempts  metric.Int64Counter
	nodeLatency   metric.Float64Histogram
	nodeRetries   metric.Int64Counter
	nodeFailures  metric.Int64Counter
	waveSize      metric.Int64Histogram
	runs          metric.Int64Counter
	runLatency    metric.Float64Histogram
	nodeCancelled metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(MeterName)
	m := &otelMetrics{}
	var err error

	if m.nodeAttempts, err = meter.Int64Counter("adl.node.attempts",
		metric.WithDescription("Number of node dispatches"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("adl.node.latency_ms",
		metric.WithDescription("Node attempt latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeRetries, err = meter.Int64Counter("adl.node.retries",
		metric.WithDescription("Number of failed attempts that were retried"),
	); err != nil {
		return nil, err
	}
	if m.nodeFailures, err = meter.Int64Counter("adl.node.failures",
		metric.WithDescription("Number of nodes that exhausted their attempts"),
	); err != nil {
		return nil, err
	}
	if m.waveSize, err = meter.Int64Histogram("adl.wave.size",
		metric.WithDescription("Nodes dispatched per wave"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("adl.runs",
		metric.WithDescription("Number of finished runs"),
	); err != nil {
		return nil, err
	}
	if m.runLatency, err = meter.Float64Histogram("adl.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeCancelled, err = meter.Int64Counter("adl.node.cancelled",
		metric.WithDescription("Number of nodes cancelled by an aborted run"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses the global OTel
// meter provider. If initialization fails it returns NoopMetrics.
//
// Configure the provider before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeAttempt records one node dispatch.
func (m *otelMetrics) RecordNodeAttempt(ctx context.Context, nodeID, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("status", status),
	)
	m.nodeAttempts.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)

	switch status {
	case "retrying":
		m.nodeRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("node_id", nodeID)))
	case "failed", "tolerated":
		m.nodeFailures.Add(ctx, 1, attrs)
	}
}

// RecordWave records a wave size.
func (m *otelMetrics) RecordWave(ctx context.Context, size int) {
	m.waveSize.Record(ctx, int64(size))
}

// RecordRun records a run completion.
func (m *otelMetrics) RecordRun(ctx context.Context, status string, duration time.Duration, cancelled int) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if cancelled > 0 {
		m.nodeCancelled.Add(ctx, int64(cancelled))
	}
}
