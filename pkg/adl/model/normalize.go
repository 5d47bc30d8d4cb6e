package model

// Normalized returns a copy of the document with every map-keyed symbol's ID
// field set to its key. Slices and nested maps are shared with d.
func (d Document) Normalized() Document {
	out := d

	out.Providers = make(map[string]Provider, len(d.Providers))
	for id, p := range d.Providers {
		p.ID = id
		out.Providers[id] = p
	}
	out.Tools = make(map[string]Tool, len(d.Tools))
	for id, t := range d.Tools {
		t.ID = id
		out.Tools[id] = t
	}
	out.Agents = make(map[string]Agent, len(d.Agents))
	for id, a := range d.Agents {
		a.ID = id
		out.Agents[id] = a
	}
	out.Tasks = make(map[string]Task, len(d.Tasks))
	for id, t := range d.Tasks {
		t.ID = id
		out.Tasks[id] = t
	}
	out.Workflows = make(map[string]Workflow, len(d.Workflows))
	for id, w := range d.Workflows {
		w.ID = id
		if w.Kind == "" {
			w.Kind = Sequential
		}
		out.Workflows[id] = w
	}
	out.Patterns = make(map[string]Pattern, len(d.Patterns))
	for id, p := range d.Patterns {
		p.ID = id
		out.Patterns[id] = p
	}
	return out
}
