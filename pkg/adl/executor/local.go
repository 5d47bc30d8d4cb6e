package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/prompt"
)

// EchoProvider is the provider kind served by the built-in echo handler.
const EchoProvider = "echo"

// Local executes nodes in-process. A node is handled by, in order: the
// handler registered for its task id, the handler registered for its
// provider kind, then the fallback.
type Local struct {
	mu        sync.RWMutex
	tasks     map[string]Backend
	providers map[string]Backend
	fallback  Backend
}

// NewLocal creates a local backend with the echo provider registered.
func NewLocal() *Local {
	return &Local{
		tasks:     make(map[string]Backend),
		providers: map[string]Backend{EchoProvider: Func(Echo)},
	}
}

// Handle registers b for nodes whose task id is taskID, replacing any
// previous handler.
func (l *Local) Handle(taskID string, b Backend) *Local {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks[taskID] = b
	return l
}

// HandleFunc registers fn for taskID.
func (l *Local) HandleFunc(taskID string, fn func(ctx context.Context, req Request) (any, error)) *Local {
	return l.Handle(taskID, Func(fn))
}

// HandleProvider registers b for nodes whose agent uses a provider of kind.
func (l *Local) HandleProvider(kind string, b Backend) *Local {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.providers[kind] = b
	return l
}

// SetFallback sets the handler used when nothing else matches.
func (l *Local) SetFallback(b Backend) *Local {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fallback = b
	return l
}

// Execute implements Backend.
func (l *Local) Execute(ctx context.Context, req Request) (any, error) {
	if req.Node == nil {
		return nil, fmt.Errorf("%w: request has no node", ErrNoHandler)
	}
	b := l.lookup(req)
	if b == nil {
		return nil, fmt.Errorf("%w: node %s (task %q, provider kind %q)",
			ErrNoHandler, req.Node.ID, req.Node.Task.TaskID, req.Node.Task.ProviderKind)
	}
	return b.Execute(ctx, req)
}

func (l *Local) lookup(req Request) Backend {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id := req.Node.Task.TaskID; id != "" {
		if b, ok := l.tasks[id]; ok {
			return b
		}
	}
	if b, ok := l.providers[req.Node.Task.ProviderKind]; ok {
		return b
	}
	return l.fallback
}

// Echo returns the node's resolved work description without calling any
// provider, with the prompt rendered from the inputs. Its output is a
// deterministic function of the request.
func Echo(_ context.Context, req Request) (any, error) {
	out := map[string]any{
		"node_id": req.Node.ID,
		"agent":   req.Node.Task.AgentID,
		"prompt":  prompt.Render(req.Node.Task.Prompt, req.Inputs),
	}
	if req.Node.Task.Model != "" {
		out["model"] = req.Node.Task.Model
	}
	if len(req.Inputs) > 0 {
		out["inputs"] = req.Inputs
	}
	return out, nil
}
