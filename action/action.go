package action

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/loop"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

// ErrHalted is returned when a run observes a pause or stop at a node
// boundary. It is never a node failure.
var ErrHalted = errors.New("execution halted")

// Action is the behavior behind one node type.
type Action interface {
	Type() model.NodeType
	Execute(ctx context.Context, req *Request) (*Result, error)
}

type Request struct {
	Execution *model.WorkflowExecution
	Node      model.Node
	// Config is the node config with variables resolved. Nil means the
	// node's own config is used as is.
	Config model.NodeConfig
	// Context is the live execution context. Loop actions write their
	// iteration scope into it.
	Context model.ExecutionContext
	// Completed lists finished node ids in execution order.
	Completed []string
	Order     int
	Iteration int
	// Body runs one loop iteration. Only set for loop nodes.
	Body loop.Body
}

func (r *Request) config() model.NodeConfig {
	if r.Config != nil {
		return r.Config
	}
	return r.Node.Config
}

func (r *Request) executionId() string {
	if r.Execution == nil {
		return ""
	}
	return r.Execution.Id
}

type Result struct {
	Output map[string]any
	Usage  model.Usage
	// Branch is set by conditional nodes.
	Branch string
	// Paused is set when the node suspended the execution.
	Paused bool
	Job    *model.AgentJob
}

func configAs[T model.NodeConfig](req *Request) (T, error) {
	cfg, ok := req.config().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("node %s: unexpected config %T for type %s", req.Node.Id, req.config(), req.Node.Type)
	}
	return cfg, nil
}

// ids reads an id list from a node output, whether it was produced in
// process or decoded from JSON.
func ids(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val != "" {
			return []string{val}
		}
	}
	return nil
}

func firstId(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if found := ids(fields[k]); len(found) > 0 {
			return found[0]
		}
	}
	return ""
}

func shorten(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}
