package benchmarks

import (
	"fmt"
	"testing"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/plan"
)

// BenchmarkCompile_Linear_10 compiles a 10-step sequential workflow.
func BenchmarkCompile_Linear_10(b *testing.B) {
	doc := linearDoc(10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = plan.Compile(doc)
	}
}

// BenchmarkCompile_Linear_100 compiles a 100-step sequential workflow.
func BenchmarkCompile_Linear_100(b *testing.B) {
	doc := linearDoc(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = plan.Compile(doc)
	}
}

// BenchmarkCompile_ForkJoin_50 compiles a fork_join pattern with 50 branches.
func BenchmarkCompile_ForkJoin_50(b *testing.B) {
	doc := forkJoinDoc(50, 2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = plan.Compile(doc)
	}
}

// BenchmarkFingerprint measures canonical encoding and hashing.
func BenchmarkFingerprint(b *testing.B) {
	p := mustCompile(forkJoinDoc(50, 2))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Fingerprint()
	}
}

func baseDoc() *model.Document {
	return &model.Document{
		Version:   "0.5",
		Providers: map[string]model.Provider{"local": {Kind: executor.EchoProvider}},
		Agents:    map[string]model.Agent{"worker": {Provider: "local"}},
		Tasks:     map[string]model.Task{"work": {Agent: "worker", Prompt: "work"}},
	}
}

func stepID(n int) string {
	return fmt.Sprintf("step-%03d", n)
}

// linearDoc builds a sequential workflow of n steps, each reading the output
// of the previous one.
func linearDoc(n int) *model.Document {
	steps := make([]model.Step, n)
	for i := range steps {
		steps[i] = model.Step{ID: stepID(i), Task: "work", SaveAs: stepID(i)}
		if i > 0 {
			steps[i].Inputs = map[string]any{"prev": model.StatePrefix + stepID(i-1)}
		}
	}
	doc := baseDoc()
	doc.Workflows = map[string]model.Workflow{"main": {Kind: model.Sequential, Steps: steps}}
	doc.Run = model.Run{Workflow: "main"}
	return doc
}

// forkJoinDoc builds a fork_join pattern with width branches of depth steps.
func forkJoinDoc(width, depth int) *model.Document {
	branches := make([]model.Branch, width)
	for i := range branches {
		steps := make([]model.Step, depth)
		for j := range steps {
			steps[j] = model.Step{ID: stepID(j), Task: "work"}
		}
		branches[i] = model.Branch{ID: fmt.Sprintf("b%03d", i), Steps: steps}
	}
	doc := baseDoc()
	doc.Patterns = map[string]model.Pattern{"fan": {
		Type: model.ForkJoin,
		Fork: &model.Fork{Entry: &model.Step{ID: "entry", Task: "work"}, Branches: branches},
		Join: &model.Step{ID: "join", Task: "work"},
	}}
	doc.Run = model.Run{Pattern: "fan"}
	return doc
}

func mustCompile(doc *model.Document) *plan.Plan {
	p, err := plan.Compile(doc)
	if err != nil {
		panic(err)
	}
	return p
}
