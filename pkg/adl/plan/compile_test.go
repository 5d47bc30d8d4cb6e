package plan

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
)

// TestCompile_SequentialWorkflow tests implicit chaining of sequential steps.
func TestCompile_SequentialWorkflow(t *testing.T) {
	doc := workflowDoc(model.Workflow{
		Steps: []model.Step{
			{ID: "one", Task: "draft", SaveAs: "first"},
			{ID: "two", Task: "review", Inputs: map[string]any{"text": "@state:first", "tone": "dry"}},
			{ID: "three", Task: "draft", Timeout: model.Duration(2 * time.Second)},
		},
	})

	p, err := Compile(doc)

	require.NoError(t, err)
	assert.Equal(t, "workflow:main", p.Target())
	assert.Equal(t, "test", p.Name())
	assert.Equal(t, []string{"one", "three", "two"}, p.NodeIDs())
	assert.Empty(t, nodeOf(p, "one").Dependencies)
	assert.Equal(t, []string{"one"}, nodeOf(p, "two").Dependencies)
	assert.Equal(t, []string{"two"}, nodeOf(p, "three").Dependencies)
	assert.Equal(t, []string{"one", "two", "three"}, p.Topological())

	two := nodeOf(p, "two")
	require.Len(t, two.Inputs, 2)
	assert.Equal(t, Binding{Name: "text", StateKey: "first"}, two.Inputs[0])
	assert.Equal(t, Binding{Name: "tone", Value: "dry"}, two.Inputs[1])
	assert.Equal(t, TaskRef{
		TaskID:       "review",
		AgentID:      "writer",
		ProviderID:   "local",
		ProviderKind: "echo",
		Model:        "m1",
		Prompt:       "review it",
		Tools:        []string{"search"},
	}, two.Task)

	three := nodeOf(p, "three")
	assert.Equal(t, 2*time.Second, three.Timeout)
	assert.Equal(t, 1, three.MaxAttempts)
	assert.Equal(t, model.OnErrorFail, three.OnError)
	assert.Equal(t, DefaultBackend, three.Backend)
}

// TestCompile_StepIDPolicy tests id derivation: authored id, then task id,
// then declaration position.
func TestCompile_StepIDPolicy(t *testing.T) {
	doc := workflowDoc(model.Workflow{
		Kind: model.Concurrent,
		Steps: []model.Step{
			{ID: "authored", Task: "draft"},
			{Task: "review"},
			{Agent: "writer", Prompt: "inline"},
		},
	})

	p, err := Compile(doc)

	require.NoError(t, err)
	assert.Equal(t, []string{"authored", "review", "step-2"}, p.NodeIDs())
	assert.Equal(t, "inline", nodeOf(p, "step-2").Task.Prompt)
	assert.Empty(t, nodeOf(p, "step-2").Task.TaskID)
}

// TestCompile_ConcurrentWorkflow tests that concurrent steps only depend on
// declared dependencies and inherit the workflow backend and limit.
func TestCompile_ConcurrentWorkflow(t *testing.T) {
	doc := workflowDoc(model.Workflow{
		Kind:           model.Concurrent,
		MaxConcurrency: 2,
		Backend:        "remote",
		Steps: []model.Step{
			{ID: "a", Task: "draft"},
			{ID: "b", Task: "draft", Backend: "local"},
			{ID: "c", Task: "review", DependsOn: []string{"b", "a", "a"}},
		},
	})
	doc.Run.Defaults.MaxConcurrency = 8

	p, err := Compile(doc)

	require.NoError(t, err)
	assert.Equal(t, 2, p.WorkflowConcurrency())
	assert.Equal(t, 8, p.RunConcurrency())
	assert.Equal(t, []string{"a", "b"}, p.Roots())
	assert.Equal(t, []string{"a", "b"}, nodeOf(p, "c").Dependencies)
	assert.Equal(t, "remote", nodeOf(p, "a").Backend)
	assert.Equal(t, "local", nodeOf(p, "b").Backend)
	assert.Equal(t, []string{"c"}, p.Dependents("a"))
}

// TestCompile_ForkJoin tests pattern expansion into branch chains and a join.
func TestCompile_ForkJoin(t *testing.T) {
	p, err := Compile(patternDoc(forkJoinPattern()))

	require.NoError(t, err)
	assert.Equal(t, []string{
		"pattern::fan::alpha::draft",
		"pattern::fan::alpha::polish",
		"pattern::fan::beta::work",
		"pattern::fan::merge",
	}, p.NodeIDs())

	alphaHead := nodeOf(p, "pattern::fan::alpha::draft")
	assert.Equal(t, KindBranchHead, alphaHead.Kind)
	assert.Empty(t, alphaHead.Dependencies)

	polish := nodeOf(p, "pattern::fan::alpha::polish")
	assert.Equal(t, KindStep, polish.Kind)
	assert.Equal(t, []string{"pattern::fan::alpha::draft"}, polish.Dependencies)

	join := nodeOf(p, "pattern::fan::merge")
	assert.Equal(t, KindJoin, join.Kind)
	assert.Equal(t, []string{"pattern::fan::alpha::polish", "pattern::fan::beta::work"}, join.Dependencies)
}

// TestCompile_ForkJoinEntry tests that branch heads depend on a declared
// fork entry node.
func TestCompile_ForkJoinEntry(t *testing.T) {
	pattern := forkJoinPattern()
	pattern.Fork.Entry = &model.Step{Task: "draft"}

	p, err := Compile(patternDoc(pattern))

	require.NoError(t, err)
	assert.Equal(t, []string{"pattern::fan::draft"}, nodeOf(p, "pattern::fan::alpha::draft").Dependencies)
	assert.Equal(t, []string{"pattern::fan::draft"}, nodeOf(p, "pattern::fan::beta::work").Dependencies)
	assert.Equal(t, []string{"pattern::fan::draft"}, p.Roots())
}

// TestCompile_LinearPattern tests namespaced ids for linear chains.
func TestCompile_LinearPattern(t *testing.T) {
	p, err := Compile(patternDoc(model.Pattern{
		Type: model.Linear,
		Steps: []model.Step{
			{Task: "draft"},
			{Task: "review"},
			{Agent: "writer"},
		},
	}))

	require.NoError(t, err)
	assert.Equal(t, []string{
		"pattern::fan::draft",
		"pattern::fan::review",
		"pattern::fan::step-2",
	}, p.Topological())
	assert.Equal(t, []string{"pattern::fan::review"}, nodeOf(p, "pattern::fan::step-2").Dependencies)
}

// TestCompile_Deterministic tests that compilation is byte-identical across
// calls.
func TestCompile_Deterministic(t *testing.T) {
	first, err := Compile(patternDoc(forkJoinPattern()))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := Compile(patternDoc(forkJoinPattern()))
		require.NoError(t, err)

		a, err := first.MarshalJSON()
		require.NoError(t, err)
		b, err := again.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))

		fa, err := first.Fingerprint()
		require.NoError(t, err)
		fb, err := again.Fingerprint()
		require.NoError(t, err)
		assert.Equal(t, fa, fb)
	}
}

// TestCompile_Cycle tests that a dependency cycle is rejected with its path.
func TestCompile_Cycle(t *testing.T) {
	doc := workflowDoc(model.Workflow{
		Kind: model.Concurrent,
		Steps: []model.Step{
			{ID: "a", Task: "draft", DependsOn: []string{"c"}},
			{ID: "b", Task: "draft", DependsOn: []string{"a"}},
			{ID: "c", Task: "draft", DependsOn: []string{"b"}},
		},
	})

	p, err := Compile(doc)

	require.Error(t, err)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrCycle)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "a", ce.Node)
	assert.Equal(t, []string{"a", "c", "b", "a"}, ce.Cycle)
	assert.Contains(t, ce.Error(), "a -> c -> b -> a")
}

// TestCompile_SelfDependency tests the smallest possible cycle.
func TestCompile_SelfDependency(t *testing.T) {
	doc := workflowDoc(model.Workflow{
		Kind:  model.Concurrent,
		Steps: []model.Step{{ID: "a", Task: "draft", DependsOn: []string{"a"}}},
	})

	_, err := Compile(doc)

	assert.ErrorIs(t, err, ErrCycle)
}

// TestCompile_Errors tests validation failures that name a node and field.
func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name      string
		steps     []model.Step
		wantErr   error
		wantNode  string
		wantField string
	}{
		{
			name:      "unknown task",
			steps:     []model.Step{{ID: "a", Task: "missing"}},
			wantErr:   ErrUnresolvedReference,
			wantNode:  "a",
			wantField: "task",
		},
		{
			name:      "unknown agent override",
			steps:     []model.Step{{ID: "a", Task: "draft", Agent: "ghost"}},
			wantErr:   ErrUnresolvedReference,
			wantNode:  "a",
			wantField: "agent",
		},
		{
			name:      "no task or agent",
			steps:     []model.Step{{ID: "a"}},
			wantErr:   ErrUnresolvedReference,
			wantNode:  "a",
			wantField: "agent",
		},
		{
			name:      "unknown dependency",
			steps:     []model.Step{{ID: "a", Task: "draft", DependsOn: []string{"zzz"}}},
			wantErr:   ErrUnresolvedReference,
			wantNode:  "a",
			wantField: "depends_on",
		},
		{
			name: "duplicate save_as",
			steps: []model.Step{
				{ID: "a", Task: "draft", SaveAs: "k"},
				{ID: "b", Task: "draft", SaveAs: "k"},
			},
			wantErr:   ErrDuplicateSaveAs,
			wantNode:  "b",
			wantField: "save_as",
		},
		{
			name: "duplicate derived id",
			steps: []model.Step{
				{Task: "draft"},
				{Task: "draft"},
			},
			wantErr:   ErrDuplicateStepID,
			wantNode:  "draft",
			wantField: "id",
		},
		{
			name:      "reserved id",
			steps:     []model.Step{{ID: "pattern::x::y", Task: "draft"}},
			wantErr:   ErrReservedStepID,
			wantNode:  "pattern::x::y",
			wantField: "id",
		},
		{
			name:      "unknown on_error",
			steps:     []model.Step{{ID: "a", Task: "draft", OnError: "ignore"}},
			wantErr:   ErrInvalidField,
			wantNode:  "a",
			wantField: "on_error",
		},
		{
			name:      "malformed state ref",
			steps:     []model.Step{{ID: "a", Task: "draft", Inputs: map[string]any{"x": "@state:"}}},
			wantErr:   ErrUnsatisfiedStateRef,
			wantNode:  "a",
			wantField: "inputs.x",
		},
		{
			name:      "state ref nobody writes",
			steps:     []model.Step{{ID: "a", Task: "draft", Inputs: map[string]any{"x": "@state:nope"}}},
			wantErr:   ErrUnsatisfiedStateRef,
			wantNode:  "a",
			wantField: "inputs.x",
		},
		{
			name: "state ref from a sibling",
			steps: []model.Step{
				{ID: "a", Task: "draft", SaveAs: "k"},
				{ID: "b", Task: "draft", Inputs: map[string]any{"x": "@state:k"}},
			},
			wantErr:   ErrUnsatisfiedStateRef,
			wantNode:  "b",
			wantField: "inputs.x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := workflowDoc(model.Workflow{Kind: model.Concurrent, Steps: tt.steps})

			_, err := Compile(doc)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			errs := CompileErrors(err)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.wantNode, errs[0].Node)
			assert.Equal(t, tt.wantField, errs[0].Field)
		})
	}
}

// TestCompile_UnresolvedProviderAndTool tests references that fail through
// the agent and task definitions.
func TestCompile_UnresolvedProviderAndTool(t *testing.T) {
	doc := workflowDoc(model.Workflow{Steps: []model.Step{
		{ID: "a", Task: "broken"},
		{ID: "b", Task: "tooling"},
	}})
	doc.Agents["orphan"] = model.Agent{Provider: "nowhere"}
	doc.Tasks["broken"] = model.Task{Agent: "orphan"}
	doc.Tasks["tooling"] = model.Task{Agent: "writer", Tools: []string{"hammer"}}

	_, err := Compile(doc)

	errs := CompileErrors(err)
	require.Len(t, errs, 2)
	assert.Equal(t, "a", errs[0].Node)
	assert.Equal(t, "provider", errs[0].Field)
	assert.Equal(t, "b", errs[1].Node)
	assert.Equal(t, "tools", errs[1].Field)
}

// TestCompile_StateRefThroughDependency tests a satisfiable transitive
// state reference in a concurrent workflow.
func TestCompile_StateRefThroughDependency(t *testing.T) {
	doc := workflowDoc(model.Workflow{
		Kind: model.Concurrent,
		Steps: []model.Step{
			{ID: "a", Task: "draft", SaveAs: "k"},
			{ID: "b", Task: "draft", DependsOn: []string{"a"}},
			{ID: "c", Task: "draft", DependsOn: []string{"b"}, Inputs: map[string]any{"x": "@state:k"}},
		},
	})

	_, err := Compile(doc)

	assert.NoError(t, err)
}

// TestCompile_RunTarget tests run section validation.
func TestCompile_RunTarget(t *testing.T) {
	t.Run("nil document", func(t *testing.T) {
		_, err := Compile(nil)
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("no target", func(t *testing.T) {
		_, err := Compile(baseDoc())
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("both targets", func(t *testing.T) {
		doc := patternDoc(forkJoinPattern())
		doc.Run.Workflow = "main"
		_, err := Compile(doc)
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("undefined workflow", func(t *testing.T) {
		doc := baseDoc()
		doc.Run.Workflow = "ghost"
		_, err := Compile(doc)
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("empty workflow", func(t *testing.T) {
		_, err := Compile(workflowDoc(model.Workflow{}))
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("negative concurrency", func(t *testing.T) {
		doc := workflowDoc(model.Workflow{
			MaxConcurrency: -1,
			Steps:          []model.Step{{Task: "draft"}},
		})
		_, err := Compile(doc)
		assert.ErrorIs(t, err, ErrInvalidConcurrency)
	})
}

// TestCompile_InvalidPatterns tests pattern shape validation.
func TestCompile_InvalidPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern func() model.Pattern
	}{
		{"no join", func() model.Pattern {
			p := forkJoinPattern()
			p.Join = nil
			return p
		}},
		{"no branches", func() model.Pattern {
			p := forkJoinPattern()
			p.Fork.Branches = nil
			return p
		}},
		{"duplicate branch", func() model.Pattern {
			p := forkJoinPattern()
			p.Fork.Branches = append(p.Fork.Branches, model.Branch{ID: "beta", Steps: []model.Step{{ID: "x", Task: "draft"}}})
			return p
		}},
		{"empty branch", func() model.Pattern {
			p := forkJoinPattern()
			p.Fork.Branches = append(p.Fork.Branches, model.Branch{ID: "gamma"})
			return p
		}},
		{"explicit depends_on", func() model.Pattern {
			p := forkJoinPattern()
			p.Join.DependsOn = []string{"pattern::fan::beta::work"}
			return p
		}},
		{"unknown type", func() model.Pattern {
			return model.Pattern{Type: "star"}
		}},
		{"linear with fork", func() model.Pattern {
			p := forkJoinPattern()
			p.Type = model.Linear
			return p
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(patternDoc(tt.pattern()))
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}
}

// TestCompile_CollectsAllErrors tests that one compile reports every problem.
func TestCompile_CollectsAllErrors(t *testing.T) {
	doc := workflowDoc(model.Workflow{
		Kind: model.Concurrent,
		Steps: []model.Step{
			{ID: "a", Task: "missing"},
			{ID: "b", Task: "draft", SaveAs: "k"},
			{ID: "c", Task: "draft", SaveAs: "k"},
		},
	})

	_, err := Compile(doc)

	assert.ErrorIs(t, err, ErrUnresolvedReference)
	assert.ErrorIs(t, err, ErrDuplicateSaveAs)
	assert.Len(t, CompileErrors(err), 2)
}

// TestPlan_JSONRoundTrip tests that a decoded plan re-encodes identically.
func TestPlan_JSONRoundTrip(t *testing.T) {
	p, err := Compile(patternDoc(forkJoinPattern()))
	require.NoError(t, err)

	data, err := p.MarshalJSON()
	require.NoError(t, err)

	var decoded Plan
	require.NoError(t, decoded.UnmarshalJSON(data))

	again, err := decoded.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
	assert.Equal(t, p.NodeIDs(), decoded.NodeIDs())
	assert.Equal(t, p.Dependents("pattern::fan::beta::work"), decoded.Dependents("pattern::fan::beta::work"))
}
