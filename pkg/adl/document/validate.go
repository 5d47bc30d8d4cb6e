package document

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/model"
)

// ErrInvalidDocument is the reason of every ShapeError.
var ErrInvalidDocument = errors.New("invalid document")

// ShapeError reports a structural problem at a document path such as
// "workflows.main.steps[2].on_error".
type ShapeError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("document: %s: %s", e.Path, e.Message)
}

// Unwrap returns ErrInvalidDocument.
func (e *ShapeError) Unwrap() error {
	return ErrInvalidDocument
}

// Validate checks the shape of doc and returns every problem found, joined.
func Validate(doc *model.Document) error {
	if doc == nil {
		return &ShapeError{Path: "", Message: "document is nil"}
	}
	v := &validator{}

	if doc.Version == "" {
		v.fail("version", "is required")
	}
	switch {
	case doc.Run.Workflow == "" && doc.Run.Pattern == "":
		v.fail("run", "must name a workflow or a pattern")
	case doc.Run.Workflow != "" && doc.Run.Pattern != "":
		v.fail("run", "must name only one of workflow and pattern")
	}
	if doc.Run.Defaults.MaxConcurrency < 0 {
		v.fail("run.defaults.max_concurrency", "must not be negative")
	}

	for _, id := range sortedKeys(doc.Workflows) {
		wf := doc.Workflows[id]
		path := "workflows." + id
		switch wf.Kind {
		case "", model.Sequential, model.Concurrent:
		default:
			v.fail(path+".kind", fmt.Sprintf("unknown kind %q", wf.Kind))
		}
		if wf.MaxConcurrency < 0 {
			v.fail(path+".max_concurrency", "must not be negative")
		}
		if len(wf.Steps) == 0 {
			v.fail(path+".steps", "must not be empty")
		}
		v.steps(path+".steps", wf.Steps)
	}

	for _, id := range sortedKeys(doc.Patterns) {
		p := doc.Patterns[id]
		path := "patterns." + id
		if p.MaxConcurrency < 0 {
			v.fail(path+".max_concurrency", "must not be negative")
		}
		switch p.Type {
		case model.Linear:
			if len(p.Steps) == 0 {
				v.fail(path+".steps", "must not be empty for a linear pattern")
			}
			v.steps(path+".steps", p.Steps)
		case model.ForkJoin:
			if p.Fork == nil || len(p.Fork.Branches) == 0 {
				v.fail(path+".fork.branches", "must not be empty for a fork_join pattern")
				break
			}
			if p.Fork.Entry != nil {
				v.step(path+".fork.entry", *p.Fork.Entry)
			}
			for i, b := range p.Fork.Branches {
				bp := fmt.Sprintf("%s.fork.branches[%d]", path, i)
				if b.ID == "" {
					v.fail(bp+".id", "is required")
				}
				v.steps(bp+".steps", b.Steps)
			}
			if p.Join != nil {
				v.step(path+".join", *p.Join)
			}
		default:
			v.fail(path+".type", fmt.Sprintf("unknown pattern type %q", p.Type))
		}
	}

	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) fail(path, msg string) {
	v.errs = append(v.errs, &ShapeError{Path: path, Message: msg})
}

func (v *validator) steps(path string, steps []model.Step) {
	for i, s := range steps {
		v.step(fmt.Sprintf("%s[%d]", path, i), s)
	}
}

func (v *validator) step(path string, s model.Step) {
	if s.Task == "" && s.Agent == "" {
		v.fail(path, "needs a task or an agent")
	}
	if !s.OnError.Valid() {
		v.fail(path+".on_error", fmt.Sprintf("must be fail or continue, got %q", s.OnError))
	}
	if s.Retry != nil && s.Retry.MaxAttempts < 0 {
		v.fail(path+".retry.max_attempts", "must not be negative")
	}
	if s.Timeout < 0 {
		v.fail(path+".timeout", "must not be negative")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
