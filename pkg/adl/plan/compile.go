package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
)

// PatternPrefix starts every id generated by pattern expansion. Authored step
// ids may not use it.
const PatternPrefix = "pattern::"

// Compile compiles the target named by the document's run section.
//
// Every validation failure is collected; the returned error joins one
// *CompileError per problem. Use CompileErrors or errors.As to inspect them.
func Compile(doc *model.Document) (*Plan, error) {
	if doc == nil {
		return nil, &CompileError{Reason: ErrUnknownTarget, Detail: "document is nil"}
	}
	run := doc.Run
	switch {
	case run.Workflow != "" && run.Pattern != "":
		return nil, &CompileError{
			Field:  "run",
			Reason: ErrUnknownTarget,
			Detail: "run names both a workflow and a pattern",
		}
	case run.Workflow != "":
		return CompileWorkflow(doc, run.Workflow)
	case run.Pattern != "":
		return CompilePattern(doc, run.Pattern)
	default:
		return nil, &CompileError{
			Field:  "run",
			Reason: ErrUnknownTarget,
			Detail: "run names neither a workflow nor a pattern",
		}
	}
}

// CompileWorkflow compiles the workflow with the given id.
func CompileWorkflow(doc *model.Document, id string) (*Plan, error) {
	c := newCompiler(doc)
	wf, ok := c.doc.Workflows[id]
	if !ok {
		return nil, &CompileError{
			Field:  "run.workflow",
			Reason: ErrUnknownTarget,
			Detail: fmt.Sprintf("workflow %q is not defined", id),
		}
	}
	c.expandWorkflow(wf)
	return c.finish("workflow:"+id, wf.MaxConcurrency)
}

// CompilePattern compiles the pattern with the given id.
func CompilePattern(doc *model.Document, id string) (*Plan, error) {
	c := newCompiler(doc)
	p, ok := c.doc.Patterns[id]
	if !ok {
		return nil, &CompileError{
			Field:  "run.pattern",
			Reason: ErrUnknownTarget,
			Detail: fmt.Sprintf("pattern %q is not defined", id),
		}
	}
	c.expandPattern(p)
	return c.finish("pattern:"+id, p.MaxConcurrency)
}

type compiler struct {
	doc    model.Document
	nodes  []*Node
	byID   map[string]*Node
	saveAs map[string]string
	errs   []error
}

func newCompiler(doc *model.Document) *compiler {
	return &compiler{
		doc:    doc.Normalized(),
		byID:   make(map[string]*Node),
		saveAs: make(map[string]string),
	}
}

func (c *compiler) fail(node, field string, reason error, format string, args ...any) {
	c.errs = append(c.errs, &CompileError{
		Node:   node,
		Field:  field,
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
	})
}

func (c *compiler) add(n *Node) {
	if _, dup := c.byID[n.ID]; dup {
		c.fail(n.ID, "id", ErrDuplicateStepID, "two steps resolve to this id; give one of them an explicit id")
		return
	}
	c.byID[n.ID] = n
	c.nodes = append(c.nodes, n)

	if n.SaveAs == "" {
		return
	}
	if prev, dup := c.saveAs[n.SaveAs]; dup {
		c.fail(n.ID, "save_as", ErrDuplicateSaveAs, "key %q is already written by %q", n.SaveAs, prev)
		return
	}
	c.saveAs[n.SaveAs] = n.ID
}

func (c *compiler) expandWorkflow(wf model.Workflow) {
	if wf.MaxConcurrency < 0 {
		c.fail("", "max_concurrency", ErrInvalidConcurrency,
			"workflow %q sets %d; the limit must be at least 1", wf.ID, wf.MaxConcurrency)
	}
	if wf.Kind != model.Sequential && wf.Kind != model.Concurrent {
		c.fail("", "kind", ErrInvalidField, "workflow %q has unknown kind %q", wf.ID, wf.Kind)
		return
	}

	ids := make([]string, len(wf.Steps))
	known := make(map[string]bool, len(wf.Steps))
	for i, step := range wf.Steps {
		ids[i] = stepID(step, i)
		known[ids[i]] = true
	}

	for i, step := range wf.Steps {
		id := ids[i]
		if strings.HasPrefix(id, PatternPrefix) {
			c.fail(id, "id", ErrReservedStepID, "ids starting with %q are reserved for pattern expansion", PatternPrefix)
			continue
		}

		n := c.buildNode(id, KindStep, step, wf.Backend)
		var deps []string
		if wf.Kind == model.Sequential && i > 0 {
			deps = append(deps, ids[i-1])
		}
		for _, dep := range step.DependsOn {
			if !known[dep] {
				c.fail(id, "depends_on", ErrUnresolvedReference, "step %q is not defined in workflow %q", dep, wf.ID)
				continue
			}
			deps = append(deps, dep)
		}
		n.Dependencies = sortedUnique(deps)
		c.add(n)
	}
}

func (c *compiler) expandPattern(p model.Pattern) {
	if p.MaxConcurrency < 0 {
		c.fail("", "max_concurrency", ErrInvalidConcurrency,
			"pattern %q sets %d; the limit must be at least 1", p.ID, p.MaxConcurrency)
	}
	ns := PatternPrefix + p.ID + "::"

	switch p.Type {
	case model.Linear:
		if p.Fork != nil || p.Join != nil {
			c.fail("", "fork", ErrInvalidPattern, "linear pattern %q cannot declare a fork or join", p.ID)
			return
		}
		c.chain(ns, p.Steps, nil, KindStep, p.Backend)

	case model.ForkJoin:
		if len(p.Steps) > 0 {
			c.fail("", "steps", ErrInvalidPattern, "fork_join pattern %q declares steps outside its branches", p.ID)
		}
		if p.Fork == nil || len(p.Fork.Branches) == 0 {
			c.fail("", "fork", ErrInvalidPattern, "fork_join pattern %q declares no branches", p.ID)
			return
		}
		if p.Join == nil {
			c.fail("", "join", ErrInvalidPattern, "fork_join pattern %q declares no join", p.ID)
			return
		}

		var headDeps []string
		if p.Fork.Entry != nil {
			entry := c.patternNode(ns+localID(*p.Fork.Entry, "entry"), KindStep, *p.Fork.Entry, nil, p.Backend)
			headDeps = []string{entry.ID}
		}

		branches := make([]model.Branch, len(p.Fork.Branches))
		copy(branches, p.Fork.Branches)
		sort.SliceStable(branches, func(i, j int) bool { return branches[i].ID < branches[j].ID })

		seen := make(map[string]bool, len(branches))
		tails := make([]string, 0, len(branches))
		for _, b := range branches {
			switch {
			case b.ID == "":
				c.fail("", "fork.branches", ErrInvalidPattern, "pattern %q has a branch without an id", p.ID)
				continue
			case seen[b.ID]:
				c.fail("", "fork.branches", ErrInvalidPattern, "pattern %q declares branch %q twice", p.ID, b.ID)
				continue
			}
			seen[b.ID] = true
			if tail := c.chain(ns+b.ID+"::", b.Steps, headDeps, KindBranchHead, p.Backend); tail != "" {
				tails = append(tails, tail)
			}
		}

		c.patternNode(ns+localID(*p.Join, "join"), KindJoin, *p.Join, tails, p.Backend)

	default:
		c.fail("", "type", ErrInvalidPattern, "pattern %q has unknown type %q", p.ID, p.Type)
	}
}

// chain expands steps into a linear chain under prefix and returns the tail
// id. The head gets headKind and headDeps.
func (c *compiler) chain(prefix string, steps []model.Step, headDeps []string, headKind Kind, backend string) string {
	if len(steps) == 0 {
		c.fail("", "steps", ErrInvalidPattern, "%q expands to an empty chain", strings.TrimSuffix(prefix, "::"))
		return ""
	}
	prev := ""
	for i, step := range steps {
		kind, deps := KindStep, []string{prev}
		if i == 0 {
			kind, deps = headKind, headDeps
		}
		n := c.patternNode(prefix+localID(step, fmt.Sprintf("step-%d", i)), kind, step, deps, backend)
		prev = n.ID
	}
	return prev
}

func (c *compiler) patternNode(id string, kind Kind, step model.Step, deps []string, backend string) *Node {
	if len(step.DependsOn) > 0 {
		c.fail(id, "depends_on", ErrInvalidPattern, "pattern steps take their edges from the pattern shape")
	}
	n := c.buildNode(id, kind, step, backend)
	n.Dependencies = sortedUnique(deps)
	c.add(n)
	return n
}

func (c *compiler) buildNode(id string, kind Kind, step model.Step, backend string) *Node {
	if !step.OnError.Valid() {
		c.fail(id, "on_error", ErrInvalidField, "unknown value %q; use %q or %q",
			step.OnError, model.OnErrorFail, model.OnErrorContinue)
	}
	return &Node{
		ID:          id,
		Kind:        kind,
		Inputs:      c.resolveInputs(id, step.Inputs),
		SaveAs:      step.SaveAs,
		MaxAttempts: step.Retry.Attempts(),
		OnError:     step.OnError.Normalized(),
		Timeout:     step.Timeout.Std(),
		Backend:     firstNonEmpty(step.Backend, backend, DefaultBackend),
		Task:        c.resolveTask(id, step),
	}
}

func (c *compiler) resolveTask(id string, step model.Step) TaskRef {
	var ref TaskRef
	agentID := step.Agent
	prompt := step.Prompt
	var tools []string

	if step.Task != "" {
		task, ok := c.doc.Tasks[step.Task]
		if !ok {
			c.fail(id, "task", ErrUnresolvedReference, "task %q is not defined", step.Task)
			return ref
		}
		ref.TaskID = task.ID
		if agentID == "" {
			agentID = task.Agent
		}
		if prompt == "" {
			prompt = task.Prompt
		}
		tools = append(tools, task.Tools...)
	}
	if agentID == "" {
		c.fail(id, "agent", ErrUnresolvedReference, "step names neither a task nor an agent")
		return ref
	}

	agent, ok := c.doc.Agents[agentID]
	if !ok {
		c.fail(id, "agent", ErrUnresolvedReference, "agent %q is not defined", agentID)
		return ref
	}
	provider, ok := c.doc.Providers[agent.Provider]
	if !ok {
		c.fail(id, "provider", ErrUnresolvedReference, "agent %q references undefined provider %q", agentID, agent.Provider)
		return ref
	}

	tools = sortedUnique(append(tools, agent.Tools...))
	for _, tool := range tools {
		if _, ok := c.doc.Tools[tool]; !ok {
			c.fail(id, "tools", ErrUnresolvedReference, "tool %q is not defined", tool)
		}
	}

	ref.AgentID = agent.ID
	ref.ProviderID = provider.ID
	ref.ProviderKind = provider.Kind
	ref.Endpoint = provider.Endpoint
	ref.Model = agent.Model
	ref.Prompt = prompt
	ref.Tools = tools
	return ref
}

func (c *compiler) resolveInputs(id string, inputs map[string]any) []Binding {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	bindings := make([]Binding, 0, len(names))
	for _, name := range names {
		value := inputs[name]
		key, isRef := model.StateRef(value)
		if !isRef {
			bindings = append(bindings, Binding{Name: name, Value: value})
			continue
		}
		if key == "" {
			c.fail(id, "inputs."+name, ErrUnsatisfiedStateRef, "%v: %q has no key", model.ErrMalformedStateRef, value)
			continue
		}
		bindings = append(bindings, Binding{Name: name, StateKey: key})
	}
	return bindings
}

func (c *compiler) finish(target string, workflowConcurrency int) (*Plan, error) {
	runConcurrency := c.doc.Run.Defaults.MaxConcurrency
	if runConcurrency < 0 {
		c.fail("", "run.defaults.max_concurrency", ErrInvalidConcurrency,
			"run default is %d; the limit must be at least 1", runConcurrency)
	}
	if len(c.nodes) == 0 && len(c.errs) == 0 {
		c.fail("", "steps", ErrUnknownTarget, "%s has no steps", target)
	}
	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}

	// Reference errors must be clear before walking edges.
	if err := c.checkCycles(); err != nil {
		return nil, err
	}
	c.checkStateRefs()
	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}

	p := newPlan(c.doc.Run.Name, target, c.nodes)
	p.workflowConcurrency = workflowConcurrency
	p.runConcurrency = runConcurrency
	return p, nil
}

func stepID(step model.Step, index int) string {
	return firstNonEmpty(step.ID, step.Task, fmt.Sprintf("step-%d", index))
}

func localID(step model.Step, fallback string) string {
	return firstNonEmpty(step.ID, step.Task, fallback)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedUnique(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
