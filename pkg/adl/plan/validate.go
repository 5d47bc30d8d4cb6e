package plan

import (
	"sort"
)

// checkCycles walks dependency edges depth-first in sorted order and reports
// the first cycle found. The cycle lists ids along depends_on edges and
// repeats the first id at the end.
func (c *compiler) checkCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)

	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	state := make(map[string]int, len(ids))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range c.byID[id].Dependencies {
			switch state[dep] {
			case visiting:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						break
					}
				}
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range ids {
		if state[id] == unvisited && visit(id) {
			return &CompileError{
				Node:   cycle[0],
				Field:  "depends_on",
				Reason: ErrCycle,
				Detail: "remove one of the dependencies on this path",
				Cycle:  cycle,
			}
		}
	}
	return nil
}

// checkStateRefs verifies that every @state reference names a key written
// by a transitive dependency of the reading node.
func (c *compiler) checkStateRefs() {
	ancestors := make(map[string]map[string]bool, len(c.byID))
	var collect func(id string) map[string]bool
	collect = func(id string) map[string]bool {
		if set, ok := ancestors[id]; ok {
			return set
		}
		set := make(map[string]bool)
		for _, dep := range c.byID[id].Dependencies {
			set[dep] = true
			for a := range collect(dep) {
				set[a] = true
			}
		}
		ancestors[id] = set
		return set
	}

	nodes := make([]*Node, len(c.nodes))
	copy(nodes, c.nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	for _, n := range nodes {
		for _, in := range n.Inputs {
			if !in.IsStateRef() {
				continue
			}
			producer, ok := c.saveAs[in.StateKey]
			switch {
			case !ok:
				c.fail(n.ID, "inputs."+in.Name, ErrUnsatisfiedStateRef,
					"no step saves %q", in.StateKey)
			case producer == n.ID:
				c.fail(n.ID, "inputs."+in.Name, ErrUnsatisfiedStateRef,
					"%q is written by this step itself", in.StateKey)
			case !collect(n.ID)[producer]:
				c.fail(n.ID, "inputs."+in.Name, ErrUnsatisfiedStateRef,
					"%q is written by %q, which is not a dependency of this step; add it to depends_on",
					in.StateKey, producer)
			}
		}
	}
}
