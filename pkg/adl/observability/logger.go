// Package observability provides structured logging, metrics and tracing
// for workflow runs.
//
// Logging uses log/slog. Metrics and spans use OpenTelemetry through the
// global providers. Every helper accepts a nil logger, and NoopMetrics and
// NoopSpanManager stand in when metrics or tracing are disabled.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// NewLogger builds a logger writing to w. format is "text" or "json";
// level is one of debug, info, warn, error.
func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// EnrichLogger returns a logger carrying run_id, node_id and attempt.
func EnrichLogger(logger *slog.Logger, runID, nodeID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.Int("attempt", attempt),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID, target string, nodes, concurrency int) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.String("target", target),
		slog.Int("nodes", nodes),
		slog.Int("concurrency", concurrency),
	)
}

// LogRunComplete logs a finished run that did not abort.
func LogRunComplete(logger *slog.Logger, runID, status string, durationMs float64, waves int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("waves", waves),
	)
}

// LogRunAbort logs a run aborted by a failed node or by cancellation.
func LogRunAbort(logger *slog.Logger, runID, abortedBy string, err error, cancelled int) {
	if logger == nil {
		return
	}
	logger.Error("run aborted",
		slog.String("run_id", runID),
		slog.String("aborted_by", abortedBy),
		slog.String("error", errString(err)),
		slog.Int("cancelled", cancelled),
	)
}

// LogWave logs the dispatch of one wave.
func LogWave(logger *slog.Logger, wave int, nodeIDs []string) {
	if logger == nil {
		return
	}
	logger.Debug("wave dispatch",
		slog.Int("wave", wave),
		slog.Int("size", len(nodeIDs)),
		slog.Any("nodes", nodeIDs),
	)
}

// LogNodeStart logs node dispatch.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeRetry logs a failed attempt that will be dispatched again.
func LogNodeRetry(logger *slog.Logger, nodeID string, attempt, maxAttempts int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("node attempt failed, retrying",
		slog.String("node_id", nodeID),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.String("error", errString(err)),
	)
}

// LogNodeError logs a node that exhausted its attempts. resolution is
// "aborted" or "tolerated".
func LogNodeError(logger *slog.Logger, nodeID, resolution string, err error) {
	if logger == nil {
		return
	}
	level := slog.LevelError
	if resolution == "tolerated" {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "node failed",
		slog.String("node_id", nodeID),
		slog.String("resolution", resolution),
		slog.String("error", errString(err)),
	)
}

// LogPersistError logs a run record that could not be saved (non-fatal).
func LogPersistError(logger *slog.Logger, runID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("run record not persisted",
		slog.String("run_id", runID),
		slog.String("error", errString(err)),
	)
}

// TimedOperation returns a function reporting the milliseconds elapsed
// since TimedOperation was called.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
