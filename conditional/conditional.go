package conditional

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/resolver"
	"go.uber.org/zap"
)

const BRANCH_TRUE = "true"
const BRANCH_FALSE = "false"

const (
	OP_EQ          = "=="
	OP_NE          = "!="
	OP_LT          = "<"
	OP_GT          = ">"
	OP_LE          = "<="
	OP_GE          = ">="
	OP_CONTAINS    = "contains"
	OP_STARTS_WITH = "startswith"
	OP_ENDS_WITH   = "endswith"
)

const DEFAULT_SCRIPT_TIMEOUT = time.Second

// Result always carries a branch. Evaluation failures land on the false
// branch with Error set.
type Result struct {
	Result  bool           `json:"result"`
	Branch  string         `json:"branch"`
	Details map[string]any `json:"details"`
	Error   string         `json:"error,omitempty"`
}

func (r Result) Output() map[string]any {
	out := map[string]any{
		"result":  r.Result,
		"branch":  r.Branch,
		"details": r.Details,
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

func newResult(ok bool, details map[string]any, err error) Result {
	res := Result{Result: ok, Branch: BRANCH_FALSE, Details: details}
	if err != nil {
		res.Result = false
		res.Error = err.Error()
		return res
	}
	if ok {
		res.Branch = BRANCH_TRUE
	}
	return res
}

type Executor struct {
	scriptTimeout time.Duration
}

func NewExecutor() *Executor {
	return &Executor{scriptTimeout: DEFAULT_SCRIPT_TIMEOUT}
}

func (e *Executor) WithScriptTimeout(d time.Duration) *Executor {
	e.scriptTimeout = d
	return e
}

// Evaluate picks the expression, then the composed conditions, then the
// single condition, whichever is set first.
func (e *Executor) Evaluate(cfg model.ConditionalConfig, ctx model.ExecutionContext) Result {
	var res Result
	switch {
	case cfg.Expression != "":
		ok, err := e.evalExpression(cfg.Expression, ctx)
		res = newResult(ok, map[string]any{"expression": cfg.Expression}, err)
	case len(cfg.Conditions) > 0:
		res = e.EvaluateAll(cfg.Conditions, cfg.Logic, ctx)
	case cfg.Condition != nil:
		res = e.EvaluateCondition(*cfg.Condition, ctx)
	default:
		res = newResult(false, map[string]any{}, fmt.Errorf("no condition configured"))
	}
	if res.Error != "" {
		logger.Warn("condition evaluation failed, taking false branch", zap.String("error", res.Error))
	}
	return res
}

func (e *Executor) EvaluateCondition(c model.Condition, ctx model.ExecutionContext) Result {
	ok, details, err := e.evalSimple(c, ctx)
	return newResult(ok, details, err)
}

// EvaluateAll combines conditions with AND (default) or OR.
func (e *Executor) EvaluateAll(conds []model.Condition, logic string, ctx model.ExecutionContext) Result {
	logic = strings.ToUpper(strings.TrimSpace(logic))
	if logic == "" {
		logic = model.LOGIC_AND
	}
	if logic != model.LOGIC_AND && logic != model.LOGIC_OR {
		return newResult(false, map[string]any{"logic": logic}, fmt.Errorf("unsupported logic %q", logic))
	}
	results := make([]map[string]any, 0, len(conds))
	combined := logic == model.LOGIC_AND
	for _, c := range conds {
		ok, details, err := e.evalSimple(c, ctx)
		if err != nil {
			return newResult(false, map[string]any{"logic": logic, "results": results}, err)
		}
		details["result"] = ok
		results = append(results, details)
		if logic == model.LOGIC_AND {
			combined = combined && ok
		} else {
			combined = combined || ok
		}
	}
	return newResult(combined, map[string]any{"logic": logic, "results": results}, nil)
}

func (e *Executor) evalSimple(c model.Condition, ctx model.ExecutionContext) (bool, map[string]any, error) {
	details := map[string]any{"operator": c.Operator}
	left, err := Operand(c.Left, ctx)
	if err != nil {
		return false, details, err
	}
	right, err := Operand(c.Right, ctx)
	if err != nil {
		return false, details, err
	}
	details["left"] = left
	details["right"] = right
	ok, err := Compare(left, strings.ToLower(strings.TrimSpace(c.Operator)), right)
	return ok, details, err
}

// Operand resolves a condition side. Strings that are a single reference keep
// the referenced value's type; other strings are resolved as text and then
// read as a number, a boolean or a string literal, in that order.
func Operand(v any, ctx model.ExecutionContext) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	if ref, ok := resolver.ParseReference(s); ok {
		val, err := resolver.Lookup(ref, ctx)
		if err != nil {
			return nil, err
		}
		if str, ok := val.(string); ok {
			return literal(str), nil
		}
		return val, nil
	}
	resolved, err := resolver.ResolveVariables(s, ctx)
	if err != nil {
		return nil, err
	}
	return literal(resolved), nil
}

func literal(s string) any {
	trimmed := strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if strings.EqualFold(trimmed, "true") {
		return true
	}
	if strings.EqualFold(trimmed, "false") {
		return false
	}
	if len(trimmed) >= 2 {
		if (trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"') || (trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'') {
			return trimmed[1 : len(trimmed)-1]
		}
	}
	return s
}

// Compare never fails on mismatched operand types; numeric operators fall
// back to string ordering when either side is not a number.
func Compare(left any, op string, right any) (bool, error) {
	switch op {
	case OP_EQ, OP_NE:
		eq := equal(left, right)
		if op == OP_NE {
			return !eq, nil
		}
		return eq, nil
	case OP_LT, OP_GT, OP_LE, OP_GE:
		lf, lok := toNumber(left)
		rf, rok := toNumber(right)
		if lok && rok {
			return order(compareFloat(lf, rf), op), nil
		}
		return order(strings.Compare(resolver.Stringify(left), resolver.Stringify(right)), op), nil
	case OP_CONTAINS:
		if items, ok := left.([]any); ok {
			for _, item := range items {
				if equal(item, right) {
					return true, nil
				}
			}
			return false, nil
		}
		return strings.Contains(resolver.Stringify(left), resolver.Stringify(right)), nil
	case OP_STARTS_WITH:
		return strings.HasPrefix(resolver.Stringify(left), resolver.Stringify(right)), nil
	case OP_ENDS_WITH:
		return strings.HasSuffix(resolver.Stringify(left), resolver.Stringify(right)), nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

func equal(left, right any) bool {
	lf, lok := toNumber(left)
	rf, rok := toNumber(right)
	if lok && rok {
		return lf == rf
	}
	lb, lok := left.(bool)
	rb, rok := right.(bool)
	if lok && rok {
		return lb == rb
	}
	return resolver.Stringify(left) == resolver.Stringify(right)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func order(cmp int, op string) bool {
	switch op {
	case OP_LT:
		return cmp < 0
	case OP_GT:
		return cmp > 0
	case OP_LE:
		return cmp <= 0
	}
	return cmp >= 0
}

func (e *Executor) evalExpression(expression string, ctx model.ExecutionContext) (bool, error) {
	data, err := json.Marshal(ctx)
	if err != nil {
		return false, fmt.Errorf("error encoding context %w", err)
	}
	vm := goja.New()
	if e.scriptTimeout > 0 {
		timer := time.AfterFunc(e.scriptTimeout, func() {
			vm.Interrupt("timeout")
		})
		defer timer.Stop()
	}
	script := fmt.Sprintf("var $ = %s;\n", data)
	if _, err := vm.RunString(script); err != nil {
		return false, fmt.Errorf("error executing javascript %w", err)
	}
	val, err := vm.RunString(expression)
	if err != nil {
		return false, fmt.Errorf("error executing javascript %w", err)
	}
	return val.ToBoolean(), nil
}
