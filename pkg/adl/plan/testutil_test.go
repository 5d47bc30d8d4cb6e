package plan

import (
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
)

// baseDoc returns a document with one provider, one agent, two tasks and a
// tool, and no run target.
func baseDoc() *model.Document {
	return &model.Document{
		Version:   "0.5",
		Providers: map[string]model.Provider{"local": {Kind: "echo"}},
		Tools:     map[string]model.Tool{"search": {Description: "web search"}},
		Agents: map[string]model.Agent{
			"writer": {Provider: "local", Model: "m1"},
		},
		Tasks: map[string]model.Task{
			"draft":  {Agent: "writer", Prompt: "draft it"},
			"review": {Agent: "writer", Prompt: "review it", Tools: []string{"search"}},
		},
	}
}

// workflowDoc returns baseDoc running the given workflow as "main".
func workflowDoc(wf model.Workflow) *model.Document {
	doc := baseDoc()
	doc.Workflows = map[string]model.Workflow{"main": wf}
	doc.Run = model.Run{Name: "test", Workflow: "main"}
	return doc
}

// patternDoc returns baseDoc running the given pattern as "fan".
func patternDoc(p model.Pattern) *model.Document {
	doc := baseDoc()
	doc.Patterns = map[string]model.Pattern{"fan": p}
	doc.Run = model.Run{Name: "test", Pattern: "fan"}
	return doc
}

// forkJoinPattern returns two branches, alpha and beta (declared out of
// order), joined at "merge", which reads alpha's output.
func forkJoinPattern() model.Pattern {
	return model.Pattern{
		Type: model.ForkJoin,
		Fork: &model.Fork{
			Branches: []model.Branch{
				{ID: "beta", Steps: []model.Step{{ID: "work", Task: "draft"}}},
				{ID: "alpha", Steps: []model.Step{
					{Task: "draft", SaveAs: "alpha_out"},
					{ID: "polish", Task: "review"},
				}},
			},
		},
		Join: &model.Step{
			ID:     "merge",
			Task:   "review",
			Inputs: map[string]any{"a": "@state:alpha_out"},
		},
	}
}

func nodeOf(p *Plan, id string) *Node {
	n, ok := p.Node(id)
	if !ok {
		return nil
	}
	return n
}
