package executor

import (
	"context"
	"fmt"
	"sort"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
)

// Router selects a backend per node by the node's Backend name.
// Routes are fixed at construction.
type Router struct {
	routes map[string]Backend
}

// NewRouter creates a router over routes. The name plan.DefaultBackend
// should normally be present.
func NewRouter(routes map[string]Backend) *Router {
	r := &Router{routes: make(map[string]Backend, len(routes))}
	for name, b := range routes {
		r.routes[name] = b
	}
	return r
}

// Names returns the routed backend names in sorted order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute implements Backend.
func (r *Router) Execute(ctx context.Context, req Request) (any, error) {
	name := plan.DefaultBackend
	if req.Node != nil && req.Node.Backend != "" {
		name = req.Node.Backend
	}
	b, ok := r.routes[name]
	if !ok {
		return nil, fmt.Errorf("%w: no backend named %q", ErrUnreachable, name)
	}
	return b.Execute(ctx, req)
}
