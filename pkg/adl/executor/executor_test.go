package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/state"
)

func request(id string) Request {
	return Request{
		RunID:   "r1",
		Attempt: 1,
		Node: &plan.Node{
			ID:      id,
			Backend: plan.DefaultBackend,
			Task:    plan.TaskRef{TaskID: "summarize", AgentID: "writer", ProviderKind: "openai", Prompt: "hi"},
		},
		Inputs: map[string]any{"topic": "go"},
	}
}

func TestCall_Success(t *testing.T) {
	b := Func(func(_ context.Context, req Request) (any, error) {
		return "ok:" + req.Node.ID, nil
	})

	out, err := Call(context.Background(), b, request("a"))

	require.NoError(t, err)
	assert.Equal(t, "ok:a", out)
}

func TestCall_WrapsFailure(t *testing.T) {
	boom := errors.New("provider said no")
	b := Func(func(context.Context, Request) (any, error) { return nil, boom })

	_, err := Call(context.Background(), b, request("a"))

	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "a", ee.NodeID)
	assert.Equal(t, 1, ee.Attempt)
	assert.Equal(t, CauseStepFailed, ee.Cause)
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, ee.Remediation())
}

func TestCall_Timeout(t *testing.T) {
	req := request("slow")
	req.Node.Timeout = 20 * time.Millisecond
	b := Func(func(ctx context.Context, _ Request) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := Call(context.Background(), b, req)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CauseTimeout, ee.Cause)
}

func TestCall_TimeoutWaitsForBackendToReturn(t *testing.T) {
	req := request("stuck")
	req.Node.Timeout = 10 * time.Millisecond
	var returned atomic.Bool
	b := Func(func(context.Context, Request) (any, error) {
		time.Sleep(60 * time.Millisecond)
		returned.Store(true)
		return "late", nil
	})

	out, err := Call(context.Background(), b, req)

	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, returned.Load(), "Call returned before the backend did")
}

func TestCall_RecoversPanic(t *testing.T) {
	b := Func(func(context.Context, Request) (any, error) { panic("kaboom") })

	_, err := Call(context.Background(), b, request("p"))

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.Contains(t, pe.Stack, "goroutine")
	assert.Equal(t, CausePanic, Classify(err))
}

func TestCall_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := Func(func(ctx context.Context, _ Request) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := Call(ctx, b, request("a"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CauseCancelled, Classify(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Cause
	}{
		{"nil", nil, ""},
		{"timeout", timeoutError(time.Second, context.DeadlineExceeded), CauseTimeout},
		{"unreachable", ErrUnreachable, CauseUnreachable},
		{"no handler", ErrNoHandler, CauseUnreachable},
		{"too large", ErrRequestTooLarge, CauseRequestTooLarge},
		{"missing input", &state.MissingInputError{Input: "x", Key: "k"}, CauseMissingInput},
		{"panic", &PanicError{NodeID: "a", Value: 1}, CausePanic},
		{"other", errors.New("x"), CauseStepFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestNewExecError_KeepsExisting(t *testing.T) {
	inner := &ExecError{NodeID: "a", Attempt: 2, Cause: CauseTimeout, Err: ErrTimeout}

	assert.Same(t, inner, NewExecError("b", 3, inner))
}

func TestLocal_Lookup(t *testing.T) {
	l := NewLocal().
		HandleFunc("summarize", func(context.Context, Request) (any, error) { return "task", nil }).
		HandleProvider("openai", Func(func(context.Context, Request) (any, error) { return "provider", nil }))

	t.Run("task handler wins", func(t *testing.T) {
		out, err := l.Execute(context.Background(), request("a"))
		require.NoError(t, err)
		assert.Equal(t, "task", out)
	})

	t.Run("provider handler", func(t *testing.T) {
		req := request("a")
		req.Node.Task.TaskID = ""
		out, err := l.Execute(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "provider", out)
	})

	t.Run("no handler", func(t *testing.T) {
		req := request("a")
		req.Node.Task.TaskID = "other"
		req.Node.Task.ProviderKind = "anthropic"
		_, err := l.Execute(context.Background(), req)
		assert.ErrorIs(t, err, ErrNoHandler)
	})

	t.Run("fallback", func(t *testing.T) {
		l2 := NewLocal().SetFallback(Func(func(context.Context, Request) (any, error) { return "fb", nil }))
		out, err := l2.Execute(context.Background(), request("a"))
		require.NoError(t, err)
		assert.Equal(t, "fb", out)
	})
}

func TestLocal_Echo(t *testing.T) {
	req := request("a")
	req.Node.Task.TaskID = ""
	req.Node.Task.ProviderKind = EchoProvider

	out, err := NewLocal().Execute(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"node_id": "a",
		"agent":   "writer",
		"prompt":  "hi",
		"inputs":  map[string]any{"topic": "go"},
	}, out)
}

func TestLocal_EchoRendersPrompt(t *testing.T) {
	req := request("a")
	req.Node.Task.TaskID = ""
	req.Node.Task.ProviderKind = EchoProvider
	req.Node.Task.Prompt = "Write about {{topic}} for {{audience}}"

	out, err := NewLocal().Execute(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "Write about go for {{audience}}", out.(map[string]any)["prompt"])
}

func TestRouter(t *testing.T) {
	local := Func(func(context.Context, Request) (any, error) { return "local", nil })
	remote := Func(func(context.Context, Request) (any, error) { return "remote", nil })
	r := NewRouter(map[string]Backend{plan.DefaultBackend: local, "remote": remote})

	out, err := r.Execute(context.Background(), request("a"))
	require.NoError(t, err)
	assert.Equal(t, "local", out)

	req := request("b")
	req.Node.Backend = "remote"
	out, err = r.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "remote", out)

	req.Node.Backend = "gpu"
	_, err = r.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnreachable)

	assert.Equal(t, []string{"local", "remote"}, r.Names())
}
