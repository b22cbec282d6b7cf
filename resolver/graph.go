package resolver

import (
	"sort"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

// ExtractDependencies returns, for every node, the ids of nodes its
// configuration references. References from a loop node to its own body are
// produced inside the loop and are not dependencies.
func ExtractDependencies(t *model.WorkflowTemplate) map[string][]string {
	known := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		known[n.Id] = true
	}
	owners := t.LoopBodies()
	deps := make(map[string][]string, len(t.Nodes))
	for _, n := range t.Nodes {
		set := make(map[string]bool)
		for _, s := range configStrings(n.Config) {
			for _, ref := range ParseVariables(s) {
				if !known[ref.NodeId] || ref.NodeId == n.Id || owners[ref.NodeId] == n.Id {
					continue
				}
				set[ref.NodeId] = true
			}
		}
		list := make([]string, 0, len(set))
		for id := range set {
			list = append(list, id)
		}
		sort.Strings(list)
		deps[n.Id] = list
	}
	return deps
}

// DetectCircularDependencies walks the implicit variable dependencies depth
// first and reports the first cycle found as a full path.
func DetectCircularDependencies(t *model.WorkflowTemplate) error {
	deps := ExtractDependencies(t)
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(t.Nodes))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
					break
				}
			}
			path := append(append([]string{}, stack[start:]...), id)
			return CycleError{Path: path}
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, n := range t.Nodes {
		if state[n.Id] == unvisited {
			if err := visit(n.Id); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildExecutionOrder runs Kahn's algorithm over explicit edges plus variable
// dependencies. Ties are broken by template node order.
func BuildExecutionOrder(t *model.WorkflowTemplate) ([]string, error) {
	known := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		known[n.Id] = true
	}
	inDegree := make(map[string]int, len(t.Nodes))
	successors := make(map[string][]string, len(t.Nodes))
	seen := make(map[[2]string]bool)
	link := func(from, to string) {
		if !known[from] || !known[to] {
			return
		}
		key := [2]string{from, to}
		if seen[key] {
			return
		}
		seen[key] = true
		successors[from] = append(successors[from], to)
		inDegree[to]++
	}
	for _, e := range t.Edges {
		link(e.Source, e.Target)
	}
	deps := ExtractDependencies(t)
	for _, n := range t.Nodes {
		for _, d := range deps[n.Id] {
			link(d, n.Id)
		}
	}

	queue := make([]string, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		if inDegree[n.Id] == 0 {
			queue = append(queue, n.Id)
		}
	}
	order := make([]string, 0, len(t.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range successors[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != len(t.Nodes) {
		placed := make(map[string]bool, len(order))
		for _, id := range order {
			placed[id] = true
		}
		var remaining []string
		for _, n := range t.Nodes {
			if !placed[n.Id] {
				remaining = append(remaining, n.Id)
			}
		}
		return nil, OrderError{Remaining: remaining}
	}
	return order, nil
}
