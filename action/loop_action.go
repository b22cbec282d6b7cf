package action

import (
	"context"
	"errors"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/loop"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"go.uber.org/zap"
)

var _ Action = new(loopAction)

type loopAction struct {
	loops *loop.Executor
}

func NewLoopAction(loops *loop.Executor) *loopAction {
	if loops == nil {
		loops = loop.NewExecutor(0, nil)
	}
	return &loopAction{loops: loops}
}

func (a *loopAction) Type() model.NodeType {
	return model.NODE_TYPE_LOOP
}

// Execute fails the node on a body failure unless continue_on_error is set.
// Halts and cancellation always propagate.
func (a *loopAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*model.LoopConfig](req)
	if err != nil {
		return nil, err
	}
	res, err := a.loops.Run(ctx, req.Node.Id, *cfg, req.Context, req.Body)
	if err != nil {
		if errors.Is(err, ErrHalted) || ctx.Err() != nil || !cfg.ContinueOnError || res == nil || res.StoppedReason != loop.STOPPED_ERROR {
			return nil, err
		}
		logger.Warn("loop body failed, continuing", zap.String("executionId", req.executionId()),
			zap.String("nodeId", req.Node.Id), zap.Error(err))
	}
	return &Result{Output: res.Output()}, nil
}
