package adl_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/runstore"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/scheduler"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/signing"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/trace"
)

const flow = `
version: "0.5"
providers:
  local:
    kind: echo
agents:
  writer:
    provider: local
tasks:
  draft:
    agent: writer
    prompt: "Draft"
  review:
    agent: writer
    prompt: "Review"
workflows:
  main:
    kind: sequential
    steps:
      - id: draft
        task: draft
        save_as: draft_out
      - id: review
        task: review
        inputs:
          text: "@state:draft_out"
run:
  name: demo
  workflow: main
`

func source() adl.Source {
	return adl.Source{Data: []byte(flow), Name: "flow.yaml"}
}

func TestEngine_Execute(t *testing.T) {
	store := runstore.NewMemoryStore()
	sink := trace.NewMemorySink()
	e := &adl.Engine{
		Backend:  executor.NewLocal(),
		Verifier: signing.Insecure{},
		Store:    store,
		Sinks:    []trace.Sink{sink},
	}

	run, err := e.Execute(context.Background(), source(), scheduler.WithRunID("run-1"))

	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusSuccess, run.Status)
	assert.Equal(t, "demo", run.Name)
	assert.Equal(t, 2, run.Count(scheduler.NodeSucceeded))
	assert.Equal(t, 2, run.Waves)
	assert.NotEmpty(t, sink.Events())

	rec, err := store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	saved, err := rec.Run()
	require.NoError(t, err)
	assert.Equal(t, run.Fingerprint, saved.Fingerprint)
}

func TestEngine_RejectsUnsignedDocument(t *testing.T) {
	calls := 0
	e := &adl.Engine{Backend: executor.Func(func(context.Context, executor.Request) (any, error) {
		calls++
		return nil, nil
	})}

	run, err := e.Execute(context.Background(), source())

	assert.ErrorIs(t, err, signing.ErrRejected)
	assert.Nil(t, run)
	assert.Zero(t, calls)
}

func TestEngine_SignedDocument(t *testing.T) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	verifier, err := signing.NewJWSVerifier(key)
	require.NoError(t, err)
	sig, err := signing.Sign(jose.EdDSA, key, []byte(flow))
	require.NoError(t, err)

	e := &adl.Engine{Backend: executor.NewLocal(), Verifier: verifier}

	src := source()
	src.Signature = sig
	run, err := e.Execute(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusSuccess, run.Status)

	src.Data = append([]byte(flow), "# edited\n"...)
	_, err = e.Execute(context.Background(), src)
	assert.ErrorIs(t, err, signing.ErrRejected)
}

func TestEngine_Abort(t *testing.T) {
	store := runstore.NewMemoryStore()
	backend := executor.NewLocal().HandleFunc("review", func(context.Context, executor.Request) (any, error) {
		return nil, errors.New("reviewer unavailable")
	})
	e := &adl.Engine{Backend: backend, Verifier: signing.Insecure{}, Store: store}

	run, err := e.Execute(context.Background(), source(), scheduler.WithRunID("run-abort"))

	var abort *scheduler.AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "review", abort.NodeID)
	assert.Equal(t, scheduler.StatusFailure, run.Status)

	rec, err := store.Load(context.Background(), "run-abort")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusFailure, rec.Status)
}

func TestEngine_PersistFailureKeepsStatus(t *testing.T) {
	store := runstore.NewMemoryStore()
	require.NoError(t, store.Close())
	e := &adl.Engine{Backend: executor.NewLocal(), Verifier: signing.Insecure{}, Store: store}

	run, err := e.Execute(context.Background(), source())

	assert.ErrorIs(t, err, runstore.ErrStoreClosed)
	require.NotNil(t, run)
	assert.Equal(t, scheduler.StatusSuccess, run.Status)
}

func TestEngine_CompileError(t *testing.T) {
	doc := []byte(`
version: "0.5"
workflows:
  main:
    steps:
      - id: a
        task: missing
run:
  workflow: main
`)
	e := &adl.Engine{Backend: executor.NewLocal(), Verifier: signing.Insecure{}}

	_, err := e.Execute(context.Background(), adl.Source{Data: doc, Name: "bad.yaml"})

	assert.NotEmpty(t, plan.CompileErrors(err))
}

func TestEngine_FromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(flow), 0o600))
	e := &adl.Engine{Backend: executor.NewLocal(), Verifier: signing.Insecure{}, Concurrency: 1}

	p, err := e.Compile(adl.Source{Path: path})
	require.NoError(t, err)
	assert.Equal(t, []string{"draft", "review"}, p.NodeIDs())

	run, err := e.Execute(context.Background(), adl.Source{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Concurrency)
}

func TestEngine_Arguments(t *testing.T) {
	_, err := (&adl.Engine{}).Execute(context.Background(), source())
	assert.ErrorIs(t, err, scheduler.ErrNilBackend)

	_, err = (&adl.Engine{Backend: executor.NewLocal()}).Execute(context.Background(), adl.Source{})
	assert.ErrorIs(t, err, adl.ErrNoSource)
}
