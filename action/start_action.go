package action

import (
	"context"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

var _ Action = new(startAction)

// startAction exposes the launch input, falling back to the node's declared
// variables.
type startAction struct{}

func NewStartAction() *startAction {
	return &startAction{}
}

func (a *startAction) Type() model.NodeType {
	return model.NODE_TYPE_START
}

func (a *startAction) Execute(_ context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*model.StartConfig](req)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cfg.Variables))
	for k, v := range cfg.Variables {
		out[k] = v
	}
	if req.Execution != nil {
		for k, v := range req.Execution.InputConfig {
			out[k] = v
		}
	}
	return &Result{Output: out}, nil
}
