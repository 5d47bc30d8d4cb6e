package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
)

// Handler serves an executor.Backend on ExecutePath.
type Handler struct {
	backend executor.Backend
	logger  *slog.Logger
}

// NewHandler creates a handler over backend. A nil logger uses slog.Default.
func NewHandler(backend executor.Backend, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{backend: backend, logger: logger}
}

// Routes returns a mux with ExecutePath and HealthPath.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+ExecutePath, h)
	mux.HandleFunc("GET "+HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	return mux
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)

	var req executor.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, response{
				Error: fmt.Sprintf("request exceeds %d bytes", MaxRequestBytes),
				Cause: executor.CauseRequestTooLarge,
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, response{Error: "decode request: " + err.Error()})
		return
	}
	if req.Node == nil || req.Node.ID == "" {
		writeJSON(w, http.StatusBadRequest, response{Error: "request has no node"})
		return
	}

	start := time.Now()
	out, err := executor.Call(r.Context(), h.backend, req)
	if err != nil {
		cause := executor.Classify(err)
		h.logger.Warn("remote step failed",
			"run_id", req.RunID,
			"node_id", req.Node.ID,
			"attempt", req.Attempt,
			"cause", string(cause),
			"error", err.Error(),
		)
		writeJSON(w, http.StatusOK, response{Error: err.Error(), Cause: cause})
		return
	}

	h.logger.Debug("remote step completed",
		"run_id", req.RunID,
		"node_id", req.Node.ID,
		"attempt", req.Attempt,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, response{Output: out})
}

// ServerConfig configures Serve.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Serve runs an HTTP server for handler until ctx is cancelled, then shuts
// it down gracefully.
func Serve(ctx context.Context, logger *slog.Logger, cfg ServerConfig, handler http.Handler) error {
	if cfg.Addr == "" {
		return errors.New("addr is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("executor listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
