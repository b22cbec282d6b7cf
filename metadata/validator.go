package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/resolver"
)

type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return ValidationError{Errors: r.Errors}
}

type ValidationError struct {
	Errors []string
}

func (e ValidationError) Error() string {
	return "workflow validation failed: " + strings.Join(e.Errors, "; ")
}

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks graph structure. Errors block execution, warnings do not.
func (v *Validator) Validate(t *model.WorkflowTemplate) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}
	errorf := func(format string, args ...any) {
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	warnf := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	if len(t.Nodes) == 0 {
		errorf("workflow has no nodes")
		return res
	}

	nodes := make(map[string]model.Node, len(t.Nodes))
	var starts, finishes []string
	for i, n := range t.Nodes {
		if n.Id == "" {
			errorf("node at index %d has no id", i)
			continue
		}
		if _, dup := nodes[n.Id]; dup {
			errorf("node id %s is duplicate", n.Id)
			continue
		}
		nodes[n.Id] = n
		if n.Type == "" {
			errorf("node %s has no type", n.Id)
			continue
		}
		if !n.Type.IsKnown() {
			errorf("node %s has unknown type %s", n.Id, n.Type)
			continue
		}
		switch n.Type {
		case model.NODE_TYPE_START:
			starts = append(starts, n.Id)
		case model.NODE_TYPE_FINISH:
			finishes = append(finishes, n.Id)
		}
		if n.Config == nil {
			cfg, _ := model.DecodeConfig(n.Type, nil)
			n.Config = cfg
		}
		for _, field := range n.Config.MissingFields() {
			errorf("node %s (%s) is missing required field %s", n.Id, n.Type, field)
		}
	}
	switch len(starts) {
	case 0:
		errorf("workflow must have exactly one start node, found none")
	case 1:
	default:
		errorf("workflow must have exactly one start node, found %d: %s", len(starts), strings.Join(starts, ", "))
	}
	if len(finishes) == 0 {
		errorf("workflow must have at least one finish node")
	}

	for i, e := range t.Edges {
		if _, ok := nodes[e.Source]; !ok {
			errorf("edge %d references unknown source node %s", i, e.Source)
		}
		target, ok := nodes[e.Target]
		if !ok {
			errorf("edge %d references unknown target node %s", i, e.Target)
		}
		if ok && target.Type == model.NODE_TYPE_START {
			warnf("edge %d points into start node %s", i, e.Target)
		}
		switch e.Branch {
		case "":
		case "true", "false":
			if src, ok := nodes[e.Source]; ok && src.Type != model.NODE_TYPE_CONDITIONAL {
				warnf("edge %d carries branch %q but source %s is not a conditional node", i, e.Branch, e.Source)
			}
		default:
			errorf("edge %d has invalid branch %q, expected \"true\" or \"false\"", i, e.Branch)
		}
	}

	owners := make(map[string]string)
	for _, n := range t.Nodes {
		cfg, ok := n.Config.(*model.LoopConfig)
		if !ok {
			continue
		}
		for _, b := range cfg.Body {
			body, exists := nodes[b]
			switch {
			case !exists:
				errorf("loop %s references unknown body node %s", n.Id, b)
			case b == n.Id:
				errorf("loop %s lists itself as a body node", n.Id)
			case body.Type == model.NODE_TYPE_START || body.Type == model.NODE_TYPE_FINISH ||
				body.Type == model.NODE_TYPE_REVIEW:
				errorf("loop %s cannot run %s node %s in its body", n.Id, body.Type, b)
			}
			if other, taken := owners[b]; taken && other != n.Id {
				errorf("node %s belongs to loops %s and %s", b, other, n.Id)
			}
			owners[b] = n.Id
		}
	}

	if err := resolver.DetectCircularDependencies(t); err != nil {
		errorf("%s", err.Error())
	} else if _, err := resolver.BuildExecutionOrder(t); err != nil {
		var oe resolver.OrderError
		if errors.As(err, &oe) {
			errorf("edges form a cycle among nodes: %s", strings.Join(oe.Remaining, ", "))
		} else {
			errorf("%s", err.Error())
		}
	}

	if len(starts) == 1 {
		reached := reachable(starts[0], t.Edges)
		for _, n := range t.Nodes {
			if reached[n.Id] || owners[n.Id] != "" {
				continue
			}
			warnf("node %s is not reachable from start node %s", n.Id, starts[0])
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func reachable(start string, edges []model.Edge) map[string]bool {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}
