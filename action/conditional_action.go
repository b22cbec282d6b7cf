package action

import (
	"context"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/conditional"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

var _ Action = new(conditionalAction)

type conditionalAction struct {
	conditions *conditional.Executor
}

func NewConditionalAction(conditions *conditional.Executor) *conditionalAction {
	if conditions == nil {
		conditions = conditional.NewExecutor()
	}
	return &conditionalAction{conditions: conditions}
}

func (a *conditionalAction) Type() model.NodeType {
	return model.NODE_TYPE_CONDITIONAL
}

func (a *conditionalAction) Execute(_ context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*model.ConditionalConfig](req)
	if err != nil {
		return nil, err
	}
	res := a.conditions.Evaluate(*cfg, req.Context)
	return &Result{Output: res.Output(), Branch: res.Branch}, nil
}
