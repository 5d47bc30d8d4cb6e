// Package model defines the typed document that the plan compiler consumes:
// providers, tools, agents, tasks, workflows, patterns and the run target.
package model

// Document is one validated workflow document.
// Map keys are the symbol ids; Normalized copies them into the ID fields.
type Document struct {
	Version   string              `yaml:"version" json:"version"`
	Providers map[string]Provider `yaml:"providers,omitempty" json:"providers,omitempty"`
	Tools     map[string]Tool     `yaml:"tools,omitempty" json:"tools,omitempty"`
	Agents    map[string]Agent    `yaml:"agents,omitempty" json:"agents,omitempty"`
	Tasks     map[string]Task     `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Workflows map[string]Workflow `yaml:"workflows,omitempty" json:"workflows,omitempty"`
	Patterns  map[string]Pattern  `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Run       Run                 `yaml:"run" json:"run"`
}

// Provider is a model provider endpoint. Kind selects the adapter that the
// executor backend uses; the compiler only checks that it is referenced
// correctly.
type Provider struct {
	ID       string         `yaml:"id,omitempty" json:"id,omitempty"`
	Kind     string         `yaml:"kind" json:"kind"`
	Endpoint string         `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Config   map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Tool is a capability an agent or task may be granted.
type Tool struct {
	ID          string `yaml:"id,omitempty" json:"id,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Agent binds a provider and model to a set of tools.
type Agent struct {
	ID       string   `yaml:"id,omitempty" json:"id,omitempty"`
	Provider string   `yaml:"provider" json:"provider"`
	Model    string   `yaml:"model,omitempty" json:"model,omitempty"`
	Tools    []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// Task is a reusable unit of work performed by an agent.
type Task struct {
	ID     string   `yaml:"id,omitempty" json:"id,omitempty"`
	Agent  string   `yaml:"agent" json:"agent"`
	Prompt string   `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Tools  []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// WorkflowKind controls implicit ordering between workflow steps.
type WorkflowKind string

const (
	// Sequential workflows chain each step to the one declared before it.
	Sequential WorkflowKind = "sequential"
	// Concurrent workflows order steps only through depends_on.
	Concurrent WorkflowKind = "concurrent"
)

// Workflow is an authored step graph.
type Workflow struct {
	ID             string       `yaml:"id,omitempty" json:"id,omitempty"`
	Kind           WorkflowKind `yaml:"kind,omitempty" json:"kind,omitempty"`
	MaxConcurrency int          `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty"`
	Backend        string       `yaml:"backend,omitempty" json:"backend,omitempty"`
	Steps          []Step       `yaml:"steps" json:"steps"`
}

// Step is one authored unit of work. A step references a task, or names an
// agent directly and carries its own prompt.
type Step struct {
	ID        string         `yaml:"id,omitempty" json:"id,omitempty"`
	Task      string         `yaml:"task,omitempty" json:"task,omitempty"`
	Agent     string         `yaml:"agent,omitempty" json:"agent,omitempty"`
	Prompt    string         `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	DependsOn []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Inputs    map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	SaveAs    string         `yaml:"save_as,omitempty" json:"save_as,omitempty"`
	Retry     *RetryPolicy   `yaml:"retry,omitempty" json:"retry,omitempty"`
	OnError   OnError        `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	Timeout   Duration       `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Backend   string         `yaml:"backend,omitempty" json:"backend,omitempty"`
}

// PatternType names a pattern expansion.
type PatternType string

const (
	// Linear patterns expand into a single chain.
	Linear PatternType = "linear"
	// ForkJoin patterns expand into parallel branches and one join node.
	ForkJoin PatternType = "fork_join"
)

// Pattern is a reusable graph shape that the compiler expands into nodes
// with reserved, namespaced ids.
type Pattern struct {
	ID             string      `yaml:"id,omitempty" json:"id,omitempty"`
	Type           PatternType `yaml:"type" json:"type"`
	MaxConcurrency int         `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty"`
	Backend        string      `yaml:"backend,omitempty" json:"backend,omitempty"`
	Steps          []Step      `yaml:"steps,omitempty" json:"steps,omitempty"`
	Fork           *Fork       `yaml:"fork,omitempty" json:"fork,omitempty"`
	Join           *Step       `yaml:"join,omitempty" json:"join,omitempty"`
}

// Fork declares the parallel section of a fork_join pattern.
type Fork struct {
	Entry    *Step    `yaml:"entry,omitempty" json:"entry,omitempty"`
	Branches []Branch `yaml:"branches" json:"branches"`
}

// Branch is one linear chain inside a fork.
type Branch struct {
	ID    string `yaml:"id" json:"id"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// Run selects what a document executes. Exactly one of Workflow and Pattern
// is set.
type Run struct {
	Name     string      `yaml:"name,omitempty" json:"name,omitempty"`
	Workflow string      `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	Pattern  string      `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Defaults RunDefaults `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// RunDefaults holds run-level defaults.
type RunDefaults struct {
	MaxConcurrency int `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty"`
}

// RetryPolicy bounds how many times a step is dispatched.
type RetryPolicy struct {
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
}

// Attempts returns the effective attempt budget. A nil policy or a
// non-positive value means one attempt.
func (r *RetryPolicy) Attempts() int {
	if r == nil || r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

// OnError selects what happens after a step exhausts its attempts.
type OnError string

const (
	// OnErrorFail aborts the run.
	OnErrorFail OnError = "fail"
	// OnErrorContinue records the failure and lets dependents run.
	OnErrorContinue OnError = "continue"
)

// Normalized returns the effective value, defaulting to OnErrorFail.
func (o OnError) Normalized() OnError {
	if o == "" {
		return OnErrorFail
	}
	return o
}

// Valid reports whether o is empty or a known value.
func (o OnError) Valid() bool {
	switch o {
	case "", OnErrorFail, OnErrorContinue:
		return true
	}
	return false
}
