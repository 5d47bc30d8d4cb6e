/*
Package prompt renders task prompts from a node's resolved inputs.

# Placeholders

A placeholder is an input name in double braces; surrounding spaces are
ignored:

	prompt.Render("Summarize {{ topic }} in {{words}} words", map[string]any{
	    "topic": "schedulers",
	    "words": 50,
	})
	// "Summarize schedulers in 50 words"

# Missing Inputs

By default a placeholder with no matching input is left as written. Use
WithMissing(MissingError) to reject such prompts, or MissingEmpty to drop
the placeholder.
*/
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.-]*)\s*\}\}`)

// Missing selects how a placeholder without an input is rendered.
type Missing int

const (
	// MissingKeep leaves the placeholder as written.
	MissingKeep Missing = iota
	// MissingEmpty replaces the placeholder with the empty string.
	MissingEmpty
	// MissingError fails the render.
	MissingError
)

// Option configures a Renderer.
type Option func(*Renderer)

// WithMissing sets the missing-input behavior.
func WithMissing(m Missing) Option {
	return func(r *Renderer) {
		r.missing = m
	}
}

// Renderer expands placeholders. It is safe for concurrent use.
type Renderer struct {
	missing Missing
}

// NewRenderer creates a Renderer. The default is MissingKeep.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{missing: MissingKeep}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render expands the placeholders of s from inputs.
func (r *Renderer) Render(s string, inputs map[string]any) (string, error) {
	if s == "" || !strings.Contains(s, "{{") {
		return s, nil
	}

	var missing []string
	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		if v, ok := inputs[name]; ok {
			return format(v)
		}
		switch r.missing {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
		}
		return match
	})
	if len(missing) > 0 {
		return out, &MissingInputsError{Names: missing}
	}
	return out, nil
}

// Placeholders returns the distinct input names referenced by s, in order
// of first appearance.
func Placeholders(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// MissingInputsError lists placeholders that had no input.
type MissingInputsError struct {
	Names []string
}

// Error implements the error interface.
func (e *MissingInputsError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("prompt references undefined input: %s", e.Names[0])
	}
	return fmt.Sprintf("prompt references undefined inputs: %s", strings.Join(e.Names, ", "))
}

var defaultRenderer = NewRenderer()

// Render expands placeholders with MissingKeep behavior.
func Render(s string, inputs map[string]any) string {
	out, _ := defaultRenderer.Render(s, inputs)
	return out
}
