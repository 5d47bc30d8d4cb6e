package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/config"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor/remote"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/observability"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/runstore"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/scheduler"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/signing"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/trace"
)

// RemoteBackend is the backend name that nodes use to select the remote
// executor.
const RemoteBackend = "remote"

// parseFlags parses args with fs, mapping -h to a clean exit and other
// failures to exitUsage.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return &ExitError{Code: exitOK}
		}
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}
	return nil
}

// loadSettings reads the config file and the environment, then applies the
// command-line overrides in apply.
func loadSettings(path string, apply func(*config.Settings)) (config.Settings, error) {
	s, err := config.Load(path)
	if err != nil {
		return config.Settings{}, &ExitError{Code: exitUsage, Message: "config: " + err.Error()}
	}
	apply(&s)
	if err := s.Validate(); err != nil {
		return config.Settings{}, &ExitError{Code: exitUsage, Message: "config: " + err.Error()}
	}
	return s, nil
}

func runCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adl run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a YAML or JSON settings file.")
	concurrency := fs.Int("concurrency", -1, "Run-level concurrency default; a workflow limit still wins.")
	tracePath := fs.String("trace", "", `Trace output file; "-" writes to stdout.`)
	storeKind := fs.String("store", "", "Run record store: none, memory, sqlite, postgres or object.")
	storeDSN := fs.String("store-dsn", "", "SQLite path or Postgres URL for the run store.")
	signature := fs.String("signature", "", "Detached JWS signature file (default DOCUMENT.sig).")
	key := fs.String("key", "", "JWK or PEM public key used to verify the signature.")
	insecure := fs.Bool("insecure-skip-verify", false, "Run without verifying the document signature.")
	remoteURL := fs.String("remote", "", "Base URL of the remote executor for nodes with backend: remote.")
	runID := fs.String("run-id", "", "Run id (default: random UUID).")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return &ExitError{Code: exitUsage, Message: "usage: adl run [options] DOCUMENT"}
	}
	docPath := fs.Arg(0)

	settings, err := loadSettings(*configPath, func(s *config.Settings) {
		if *concurrency >= 0 {
			s.Concurrency = *concurrency
		}
		setIf(&s.TracePath, *tracePath)
		setIf(&s.Store.Kind, *storeKind)
		setIf(&s.Store.DSN, *storeDSN)
		setIf(&s.Signing.KeyPath, *key)
		setIf(&s.Remote.Endpoint, *remoteURL)
		if *insecure {
			s.Signing.InsecureSkipVerify = true
		}
	})
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(settings.LogLevel, settings.LogFormat, stderr)
	if err != nil {
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, closeSinks, err := openTrace(settings.TracePath, stdout)
	if err != nil {
		return err
	}
	defer closeSinks()

	store, err := runstore.Open(ctx, storeConfig(settings.Store))
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	verifier, err := buildVerifier(settings.Signing)
	if err != nil {
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}
	sig, err := readSignature(*signature, docPath)
	if err != nil {
		return err
	}

	backend := buildBackend(settings.Remote)
	logger.Debug("executor routes", "backends", backend.Names())

	engine := &adl.Engine{
		Backend:     backend,
		Verifier:    verifier,
		Store:       store,
		Sinks:       sinks,
		Logger:      logger,
		Concurrency: settings.Concurrency,
		Metrics:     observability.NewMetricsRecorder(),
		Spans:       observability.NewSpanManager(),
	}
	var opts []scheduler.Option
	if *runID != "" {
		opts = append(opts, scheduler.WithRunID(*runID))
	}

	run, err := engine.Execute(ctx, adl.Source{Path: docPath, Signature: sig}, opts...)
	if run != nil {
		fmt.Fprintf(stderr, "run %s %s: %d nodes, %d waves, %s\n",
			run.ID, run.Status, len(run.Outcomes), run.Waves, run.Duration())
	}
	return classify(err)
}

// classify maps an engine error to an exit code.
func classify(err error) error {
	var abort *scheduler.AbortError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, signing.ErrRejected):
		return &ExitError{Code: exitRejected, Message: err.Error()}
	case len(plan.CompileErrors(err)) > 0:
		return &ExitError{Code: exitCompile, Message: err.Error()}
	case errors.As(err, &abort):
		msg := abort.Error()
		if r := abort.Remediation(); r != "" {
			msg += "\n" + r
		}
		return &ExitError{Code: exitFailure, Message: msg}
	default:
		return err
	}
}

func planCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adl plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return &ExitError{Code: exitUsage, Message: "usage: adl plan DOCUMENT"}
	}

	p, err := (&adl.Engine{}).Compile(adl.Source{Path: fs.Arg(0)})
	if err != nil {
		return classify(err)
	}
	data, err := p.MarshalJSON()
	if err != nil {
		return err
	}
	fp, err := p.Fingerprint()
	if err != nil {
		return err
	}

	dependents := make(map[string][]string)
	for _, id := range p.NodeIDs() {
		if d := p.Dependents(id); len(d) > 0 {
			dependents[id] = d
		}
	}
	out := struct {
		Fingerprint string              `json:"fingerprint"`
		Roots       []string            `json:"roots"`
		Order       []string            `json:"order"`
		Dependents  map[string][]string `json:"dependents,omitempty"`
		Plan        json.RawMessage     `json:"plan"`
	}{
		Fingerprint: fp,
		Roots:       p.Roots(),
		Order:       p.Topological(),
		Dependents:  dependents,
		Plan:        data,
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func serveCommand(args []string, _ io.Writer, stderr io.Writer) error {
	fs := flag.NewFlagSet("adl serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a YAML or JSON settings file.")
	addr := fs.String("addr", "", "Listen address (default :8080).")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	settings, err := loadSettings(*configPath, func(s *config.Settings) {
		setIf(&s.ServeAddr, *addr)
	})
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(settings.LogLevel, settings.LogFormat, stderr)
	if err != nil {
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := remote.NewHandler(executor.NewLocal(), logger)
	return remote.Serve(ctx, logger, remote.ServerConfig{Addr: settings.ServeAddr}, handler.Routes())
}

func openTrace(path string, stdout io.Writer) ([]trace.Sink, func(), error) {
	sinks := []trace.Sink{trace.SpanSink{}}
	if path == "" || path == "-" {
		return append(sinks, trace.NewLineSink(stdout)), func() {}, nil
	}
	f, err := trace.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	return append(sinks, f), func() {
		if err := f.Close(); err != nil {
			slog.Warn("close trace file", "path", path, "error", err.Error())
		}
	}, nil
}

func storeConfig(s config.StoreSettings) runstore.Config {
	return runstore.Config{
		Kind: s.Kind,
		DSN:  s.DSN,
		Object: runstore.ObjectConfig{
			Endpoint:  s.Endpoint,
			Bucket:    s.Bucket,
			Prefix:    s.Prefix,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			UseSSL:    s.UseSSL,
		},
	}
}

// buildVerifier returns nil when no key is configured, which the signing
// gate rejects.
func buildVerifier(s config.SigningSettings) (signing.Verifier, error) {
	if s.InsecureSkipVerify {
		slog.Warn("document signature verification is disabled")
		return signing.Insecure{}, nil
	}
	if s.KeyPath == "" {
		return nil, nil
	}
	v, err := signing.LoadVerifier(s.KeyPath)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func readSignature(path, docPath string) ([]byte, error) {
	explicit := path != ""
	if !explicit {
		path = docPath + ".sig"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return data, nil
	case !explicit && errors.Is(err, os.ErrNotExist):
		return nil, nil
	default:
		return nil, &ExitError{Code: exitUsage, Message: fmt.Sprintf("read signature: %v", err)}
	}
}

// buildBackend routes nodes by their backend name. The remote route exists
// only when an endpoint is set; without one, nodes with backend: remote fail
// as unreachable.
func buildBackend(s config.RemoteSettings) *executor.Router {
	routes := map[string]executor.Backend{plan.DefaultBackend: executor.NewLocal()}
	if s.Endpoint == "" {
		return executor.NewRouter(routes)
	}
	opts := []remote.ClientOption{remote.WithTimeout(s.Timeout)}
	if s.OAuth2Enabled() {
		opts = append(opts, remote.WithOAuth2(clientcredentials.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			TokenURL:     s.TokenURL,
			Scopes:       s.Scopes,
		}))
	}
	routes[RemoteBackend] = remote.NewClient(s.Endpoint, opts...)
	return executor.NewRouter(routes)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
