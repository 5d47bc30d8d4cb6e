package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
)

// hclFile is the top-level structure of an HCL document.
type hclFile struct {
	Version   string        `hcl:"version"`
	Providers []hclProvider `hcl:"provider,block"`
	Tools     []hclTool     `hcl:"tool,block"`
	Agents    []hclAgent    `hcl:"agent,block"`
	Tasks     []hclTask     `hcl:"task,block"`
	Workflows []hclWorkflow `hcl:"workflow,block"`
	Patterns  []hclPattern  `hcl:"pattern,block"`
	Run       *hclRun       `hcl:"run,block"`
}

type hclProvider struct {
	ID       string    `hcl:"id,label"`
	Kind     string    `hcl:"kind"`
	Endpoint string    `hcl:"endpoint,optional"`
	Config   cty.Value `hcl:"config,optional"`
}

type hclTool struct {
	ID          string `hcl:"id,label"`
	Description string `hcl:"description,optional"`
}

type hclAgent struct {
	ID       string   `hcl:"id,label"`
	Provider string   `hcl:"provider"`
	Model    string   `hcl:"model,optional"`
	Tools    []string `hcl:"tools,optional"`
}

type hclTask struct {
	ID     string   `hcl:"id,label"`
	Agent  string   `hcl:"agent"`
	Prompt string   `hcl:"prompt,optional"`
	Tools  []string `hcl:"tools,optional"`
}

type hclWorkflow struct {
	ID             string    `hcl:"id,label"`
	Kind           string    `hcl:"kind,optional"`
	MaxConcurrency int       `hcl:"max_concurrency,optional"`
	Backend        string    `hcl:"backend,optional"`
	Steps          []hclStep `hcl:"step,block"`
}

type hclPattern struct {
	ID             string    `hcl:"id,label"`
	Type           string    `hcl:"type"`
	MaxConcurrency int       `hcl:"max_concurrency,optional"`
	Backend        string    `hcl:"backend,optional"`
	Steps          []hclStep `hcl:"step,block"`
	Fork           *hclFork  `hcl:"fork,block"`
	Join           *hclStep  `hcl:"join,block"`
}

type hclFork struct {
	Entry    *hclStep    `hcl:"entry,block"`
	Branches []hclBranch `hcl:"branch,block"`
}

type hclBranch struct {
	ID    string    `hcl:"id,label"`
	Steps []hclStep `hcl:"step,block"`
}

// hclStep has no label so that ids stay optional.
type hclStep struct {
	ID        string    `hcl:"id,optional"`
	Task      string    `hcl:"task,optional"`
	Agent     string    `hcl:"agent,optional"`
	Prompt    string    `hcl:"prompt,optional"`
	DependsOn []string  `hcl:"depends_on,optional"`
	Inputs    cty.Value `hcl:"inputs,optional"`
	SaveAs    string    `hcl:"save_as,optional"`
	Retry     *hclRetry `hcl:"retry,block"`
	OnError   string    `hcl:"on_error,optional"`
	Timeout   string    `hcl:"timeout,optional"`
	Backend   string    `hcl:"backend,optional"`
}

type hclRetry struct {
	MaxAttempts int `hcl:"max_attempts"`
}

type hclRun struct {
	Name           string `hcl:"name,optional"`
	Workflow       string `hcl:"workflow,optional"`
	Pattern        string `hcl:"pattern,optional"`
	MaxConcurrency int    `hcl:"max_concurrency,optional"`
}

// FromHCL decodes an HCL document. filename is used in diagnostics.
// Expressions are evaluated without variables or functions: a document is
// data, not a program.
func FromHCL(data []byte, filename string) (*model.Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("document: parse hcl: %w", diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("document: decode hcl: %w", diags)
	}

	c := &hclConverter{}
	doc := c.document(parsed)
	if len(c.diags) > 0 {
		return nil, fmt.Errorf("document: decode hcl: %w", c.diags)
	}
	return doc, nil
}

type hclConverter struct {
	diags hcl.Diagnostics
}

func (c *hclConverter) fail(summary, detail string) {
	c.diags = append(c.diags, &hcl.Diagnostic{Severity: hcl.DiagError, Summary: summary, Detail: detail})
}

func (c *hclConverter) document(f hclFile) *model.Document {
	doc := &model.Document{
		Version:   f.Version,
		Providers: make(map[string]model.Provider, len(f.Providers)),
		Tools:     make(map[string]model.Tool, len(f.Tools)),
		Agents:    make(map[string]model.Agent, len(f.Agents)),
		Tasks:     make(map[string]model.Task, len(f.Tasks)),
		Workflows: make(map[string]model.Workflow, len(f.Workflows)),
		Patterns:  make(map[string]model.Pattern, len(f.Patterns)),
	}

	for _, p := range f.Providers {
		cfg, _ := c.object("provider "+p.ID+" config", p.Config).(map[string]any)
		doc.Providers[p.ID] = model.Provider{ID: p.ID, Kind: p.Kind, Endpoint: p.Endpoint, Config: cfg}
	}
	for _, t := range f.Tools {
		doc.Tools[t.ID] = model.Tool{ID: t.ID, Description: t.Description}
	}
	for _, a := range f.Agents {
		doc.Agents[a.ID] = model.Agent{ID: a.ID, Provider: a.Provider, Model: a.Model, Tools: a.Tools}
	}
	for _, t := range f.Tasks {
		doc.Tasks[t.ID] = model.Task{ID: t.ID, Agent: t.Agent, Prompt: t.Prompt, Tools: t.Tools}
	}
	for _, w := range f.Workflows {
		doc.Workflows[w.ID] = model.Workflow{
			ID:             w.ID,
			Kind:           model.WorkflowKind(w.Kind),
			MaxConcurrency: w.MaxConcurrency,
			Backend:        w.Backend,
			Steps:          c.steps("workflow "+w.ID, w.Steps),
		}
	}
	for _, p := range f.Patterns {
		pat := model.Pattern{
			ID:             p.ID,
			Type:           model.PatternType(p.Type),
			MaxConcurrency: p.MaxConcurrency,
			Backend:        p.Backend,
			Steps:          c.steps("pattern "+p.ID, p.Steps),
		}
		if p.Fork != nil {
			fork := &model.Fork{}
			if p.Fork.Entry != nil {
				entry := c.step("pattern "+p.ID+" entry", *p.Fork.Entry)
				fork.Entry = &entry
			}
			for _, b := range p.Fork.Branches {
				fork.Branches = append(fork.Branches, model.Branch{
					ID:    b.ID,
					Steps: c.steps("pattern "+p.ID+" branch "+b.ID, b.Steps),
				})
			}
			pat.Fork = fork
		}
		if p.Join != nil {
			join := c.step("pattern "+p.ID+" join", *p.Join)
			pat.Join = &join
		}
		doc.Patterns[p.ID] = pat
	}
	if f.Run != nil {
		doc.Run = model.Run{
			Name:     f.Run.Name,
			Workflow: f.Run.Workflow,
			Pattern:  f.Run.Pattern,
			Defaults: model.RunDefaults{MaxConcurrency: f.Run.MaxConcurrency},
		}
	}

	c.checkUnique(f)
	return doc
}

func (c *hclConverter) steps(where string, in []hclStep) []model.Step {
	out := make([]model.Step, 0, len(in))
	for i, s := range in {
		out = append(out, c.step(fmt.Sprintf("%s step %d", where, i), s))
	}
	return out
}

func (c *hclConverter) step(where string, s hclStep) model.Step {
	step := model.Step{
		ID:        s.ID,
		Task:      s.Task,
		Agent:     s.Agent,
		Prompt:    s.Prompt,
		DependsOn: s.DependsOn,
		SaveAs:    s.SaveAs,
		OnError:   model.OnError(s.OnError),
		Backend:   s.Backend,
	}
	if s.Retry != nil {
		step.Retry = &model.RetryPolicy{MaxAttempts: s.Retry.MaxAttempts}
	}
	if inputs, ok := c.object(where+" inputs", s.Inputs).(map[string]any); ok {
		step.Inputs = inputs
	}
	timeout, err := model.ParseDuration(s.Timeout)
	if err != nil {
		c.fail("Invalid timeout", fmt.Sprintf("%s: %v", where, err))
	}
	step.Timeout = timeout
	return step
}

// object converts an HCL object value to Go through its JSON encoding.
// Integral numbers become int64 and other numbers float64.
func (c *hclConverter) object(where string, v cty.Value) any {
	if v.Type() == cty.NilType || v.IsNull() {
		return nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		c.fail("Invalid value", where+": must be an object")
		return nil
	}
	if !v.IsWhollyKnown() {
		c.fail("Invalid value", where+": must be a literal")
		return nil
	}
	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		c.fail("Invalid value", fmt.Sprintf("%s: %v", where, err))
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		c.fail("Invalid value", fmt.Sprintf("%s: %v", where, err))
		return nil
	}
	return normalizeNumbers(out)
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	default:
		return v
	}
}

// checkUnique reports symbols declared more than once.
func (c *hclConverter) checkUnique(f hclFile) {
	check := func(kind string, ids []string) {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				c.fail("Duplicate "+kind, fmt.Sprintf("%s %q is declared more than once", kind, id))
			}
			seen[id] = true
		}
	}
	ids := func(n int, at func(int) string) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = at(i)
		}
		return out
	}
	check("provider", ids(len(f.Providers), func(i int) string { return f.Providers[i].ID }))
	check("tool", ids(len(f.Tools), func(i int) string { return f.Tools[i].ID }))
	check("agent", ids(len(f.Agents), func(i int) string { return f.Agents[i].ID }))
	check("task", ids(len(f.Tasks), func(i int) string { return f.Tasks[i].ID }))
	check("workflow", ids(len(f.Workflows), func(i int) string { return f.Workflows[i].ID }))
	check("pattern", ids(len(f.Patterns), func(i int) string { return f.Patterns[i].ID }))
}
