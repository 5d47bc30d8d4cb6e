// Package plan compiles a workflow document into an immutable execution plan:
// step nodes with stable ids and explicit dependency edges.
//
// Compilation is a pure function of the document. The same document always
// yields the same node ids, the same edges and the same canonical encoding.
package plan

import (
	"sort"
	"time"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
)

// DefaultBackend is the executor backend used when no step, workflow or
// pattern names one.
const DefaultBackend = "local"

// Kind is the structural role of a node.
type Kind string

const (
	// KindStep is an ordinary workflow or chain step.
	KindStep Kind = "step"
	// KindBranchHead is the first node of a fork branch.
	KindBranchHead Kind = "branch_head"
	// KindJoin depends on every branch tail of a fork.
	KindJoin Kind = "join"
)

// Binding is one named input of a node: either a literal value or a
// reference to a state key.
type Binding struct {
	Name     string `json:"name"`
	StateKey string `json:"state_key,omitempty"`
	Value    any    `json:"value"`
}

// IsStateRef reports whether the binding reads from the state store.
func (b Binding) IsStateRef() bool {
	return b.StateKey != ""
}

// TaskRef is the fully resolved work description of a node.
type TaskRef struct {
	TaskID       string   `json:"task_id,omitempty"`
	AgentID      string   `json:"agent_id"`
	ProviderID   string   `json:"provider_id"`
	ProviderKind string   `json:"provider_kind,omitempty"`
	Endpoint     string   `json:"endpoint,omitempty"`
	Model        string   `json:"model,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	Tools        []string `json:"tools,omitempty"`
}

// Node is one unit of executable work. Nodes are owned by their Plan and
// must not be modified.
type Node struct {
	ID           string        `json:"id"`
	Kind         Kind          `json:"kind"`
	Dependencies []string      `json:"dependencies"`
	Inputs       []Binding     `json:"inputs"`
	SaveAs       string        `json:"save_as,omitempty"`
	MaxAttempts  int           `json:"max_attempts"`
	OnError      model.OnError `json:"on_error"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	Backend      string        `json:"backend"`
	Task         TaskRef       `json:"task"`
}

// Plan is the compiled execution graph for one run target.
// A Plan is immutable and safe for concurrent use.
type Plan struct {
	name                string
	target              string
	workflowConcurrency int
	runConcurrency      int

	nodes      []*Node
	index      map[string]*Node
	dependents map[string][]string
}

func newPlan(name, target string, nodes []*Node) *Plan {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	p := &Plan{
		name:       name,
		target:     target,
		nodes:      nodes,
		index:      make(map[string]*Node, len(nodes)),
		dependents: make(map[string][]string, len(nodes)),
	}
	for _, n := range nodes {
		p.index[n.ID] = n
	}
	for _, n := range nodes {
		for _, dep := range n.Dependencies {
			p.dependents[dep] = append(p.dependents[dep], n.ID)
		}
	}
	for id := range p.dependents {
		sort.Strings(p.dependents[id])
	}
	return p
}

// Name returns the run name from the document, which may be empty.
func (p *Plan) Name() string {
	return p.name
}

// Target returns the compiled target as "workflow:<id>" or "pattern:<id>".
func (p *Plan) Target() string {
	return p.target
}

// WorkflowConcurrency returns the workflow-local concurrency override, or 0.
func (p *Plan) WorkflowConcurrency() int {
	return p.workflowConcurrency
}

// RunConcurrency returns the document's run-level concurrency default, or 0.
func (p *Plan) RunConcurrency() int {
	return p.runConcurrency
}

// Len returns the number of nodes.
func (p *Plan) Len() int {
	return len(p.nodes)
}

// Nodes returns every node sorted by id.
func (p *Plan) Nodes() []*Node {
	out := make([]*Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// NodeIDs returns every node id in sorted order.
func (p *Plan) NodeIDs() []string {
	ids := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		ids[i] = n.ID
	}
	return ids
}

// Node returns the node with the given id.
func (p *Plan) Node(id string) (*Node, bool) {
	n, ok := p.index[id]
	return n, ok
}

// Dependents returns the ids of nodes that depend directly on id, sorted.
func (p *Plan) Dependents(id string) []string {
	return p.dependents[id]
}

// Roots returns the ids of nodes without dependencies, sorted.
func (p *Plan) Roots() []string {
	var roots []string
	for _, n := range p.nodes {
		if len(n.Dependencies) == 0 {
			roots = append(roots, n.ID)
		}
	}
	return roots
}

// Topological returns the node ids in dependency order. Among nodes whose
// dependencies are satisfied, the lexicographically smallest comes first.
func (p *Plan) Topological() []string {
	inDegree := make(map[string]int, len(p.nodes))
	for _, n := range p.nodes {
		inDegree[n.ID] = len(n.Dependencies)
	}

	ready := p.Roots()
	order := make([]string, 0, len(p.nodes))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, next := range p.dependents[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
				sort.Strings(ready)
			}
		}
	}
	return order
}
