package loop

import (
	"context"
	"fmt"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/conditional"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/config"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/resolver"
	"go.uber.org/zap"
)

const STOPPED_COMPLETED = "completed"
const STOPPED_MAX_ITERATIONS = "max_iterations"
const STOPPED_ERROR = "error"

const CURRENT_ITEM_FIELD = "loop_current_item"
const CURRENT_INDEX_FIELD = "loop_current_index"
const ITERATION_FIELD = "loop_iteration"

type Iteration struct {
	Index int
	Item  any
	// HasItem is set for collection loops only.
	HasItem bool
}

func (it Iteration) Scope() map[string]any {
	scope := map[string]any{
		CURRENT_INDEX_FIELD: it.Index,
		ITERATION_FIELD:     it.Index + 1,
	}
	if it.HasItem {
		scope[CURRENT_ITEM_FIELD] = it.Item
	}
	return scope
}

// Body runs one iteration. Its returned fields are collected into the loop
// results.
type Body func(ctx context.Context, it Iteration) (map[string]any, error)

type Result struct {
	Iterations    int              `json:"iterations"`
	Results       []map[string]any `json:"results"`
	StoppedReason string           `json:"stopped_reason"`
	Error         string           `json:"error,omitempty"`
}

func (r *Result) Output() map[string]any {
	out := map[string]any{
		"iterations":     r.Iterations,
		"results":        r.Results,
		"stopped_reason": r.StoppedReason,
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

type Executor struct {
	maxIterations int
	conditions    *conditional.Executor
}

// NewExecutor caps every loop at maxIterations, itself never above
// config.MAX_LOOP_ITERATIONS.
func NewExecutor(maxIterations int, conditions *conditional.Executor) *Executor {
	if maxIterations <= 0 || maxIterations > config.MAX_LOOP_ITERATIONS {
		maxIterations = config.MAX_LOOP_ITERATIONS
	}
	if conditions == nil {
		conditions = conditional.NewExecutor()
	}
	return &Executor{maxIterations: maxIterations, conditions: conditions}
}

// Cap lowers the executor cap by the node's own max, never raises it.
func (e *Executor) Cap(cfg model.LoopConfig) int {
	if cfg.MaxIterations > 0 && cfg.MaxIterations < e.maxIterations {
		return cfg.MaxIterations
	}
	return e.maxIterations
}

// Run drives the body under the configured strategy. Before each iteration
// the loop scope is written to execCtx[nodeId] so the body and the loop
// condition can reference it. A body failure stops the loop and is returned
// alongside the partial result.
func (e *Executor) Run(ctx context.Context, nodeId string, cfg model.LoopConfig, execCtx model.ExecutionContext, body Body) (*Result, error) {
	limit := e.Cap(cfg)
	res := &Result{Results: make([]map[string]any, 0)}
	switch cfg.EffectiveStrategy() {
	case model.LOOP_STRATEGY_FIXED:
		n := cfg.Iterations
		if n < 0 {
			n = 0
		}
		if n > limit {
			n = limit
		}
		for i := 0; i < n; i++ {
			if err := e.iterate(ctx, nodeId, Iteration{Index: i}, execCtx, body, res); err != nil {
				return res, err
			}
		}
		if cfg.Iterations > limit {
			res.StoppedReason = STOPPED_MAX_ITERATIONS
		} else {
			res.StoppedReason = STOPPED_COMPLETED
		}
	case model.LOOP_STRATEGY_CONDITIONAL:
		if cfg.Condition == nil {
			return res, fmt.Errorf("loop %s has no condition", nodeId)
		}
		for i := 0; ; i++ {
			if i >= limit {
				res.StoppedReason = STOPPED_MAX_ITERATIONS
				break
			}
			execCtx[nodeId] = Iteration{Index: i}.Scope()
			check := e.conditions.EvaluateCondition(*cfg.Condition, execCtx)
			if check.Error != "" {
				logger.Warn("loop condition failed", zap.String("nodeId", nodeId), zap.String("error", check.Error))
				res.StoppedReason = STOPPED_ERROR
				res.Error = check.Error
				break
			}
			if !check.Result {
				res.StoppedReason = STOPPED_COMPLETED
				break
			}
			if err := e.iterate(ctx, nodeId, Iteration{Index: i}, execCtx, body, res); err != nil {
				return res, err
			}
		}
	case model.LOOP_STRATEGY_COLLECTION:
		items, err := Collection(cfg.Collection, execCtx)
		if err != nil {
			return res, err
		}
		n := len(items)
		if n > limit {
			n = limit
		}
		for i := 0; i < n; i++ {
			if err := e.iterate(ctx, nodeId, Iteration{Index: i, Item: items[i], HasItem: true}, execCtx, body, res); err != nil {
				return res, err
			}
		}
		if len(items) > limit {
			res.StoppedReason = STOPPED_MAX_ITERATIONS
		} else {
			res.StoppedReason = STOPPED_COMPLETED
		}
	default:
		return res, fmt.Errorf("unsupported loop strategy %q", cfg.Strategy)
	}
	logger.Debug("loop finished", zap.String("nodeId", nodeId), zap.Int("iterations", res.Iterations),
		zap.String("stoppedReason", res.StoppedReason))
	return res, nil
}

func (e *Executor) iterate(ctx context.Context, nodeId string, it Iteration, execCtx model.ExecutionContext, body Body, res *Result) error {
	if err := ctx.Err(); err != nil {
		res.StoppedReason = STOPPED_ERROR
		res.Error = err.Error()
		return err
	}
	execCtx[nodeId] = it.Scope()
	entry := map[string]any{"index": it.Index}
	if it.HasItem {
		entry["item"] = it.Item
	}
	var out map[string]any
	if body != nil {
		var err error
		out, err = body(ctx, it)
		if err != nil {
			res.StoppedReason = STOPPED_ERROR
			res.Error = err.Error()
			return fmt.Errorf("loop %s iteration %d: %w", nodeId, it.Index, err)
		}
	}
	if out != nil {
		entry["output"] = out
	}
	res.Results = append(res.Results, entry)
	res.Iterations++
	return nil
}

// Collection resolves a {{node.field}} reference to a list. Values that are
// not lists are rejected rather than coerced.
func Collection(expr string, execCtx model.ExecutionContext) ([]any, error) {
	ref, ok := resolver.ParseReference(expr)
	if !ok {
		return nil, fmt.Errorf("collection %q is not a {{node.field}} reference", expr)
	}
	v, err := resolver.Lookup(ref, execCtx)
	if err != nil {
		return nil, err
	}
	switch items := v.(type) {
	case []any:
		return items, nil
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(items))
		for i, m := range items {
			out[i] = m
		}
		return out, nil
	}
	return nil, fmt.Errorf("collection %s resolved to %T, expected a list", ref, v)
}
