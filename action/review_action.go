package action

import (
	"context"
	"time"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"go.uber.org/zap"
)

const REVIEW_AWAITING = "awaiting_review"

var _ Action = new(reviewAction)

// reviewAction is a human gate. It pauses the whole execution; only an
// explicit resume moves it on.
type reviewAction struct {
	store persistence.ExecutionStore
}

func NewReviewAction(store persistence.ExecutionStore) *reviewAction {
	return &reviewAction{store: store}
}

func (a *reviewAction) Type() model.NodeType {
	return model.NODE_TYPE_REVIEW
}

func (a *reviewAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*model.ReviewConfig](req)
	if err != nil {
		return nil, err
	}
	executionId := req.executionId()
	_, err = a.store.UpdateExecution(ctx, executionId, func(exec *model.WorkflowExecution) error {
		exec.CurrentNodeId = req.Node.Id
		return exec.Transition(model.PAUSED, time.Now())
	})
	if err != nil {
		return nil, err
	}
	logger.Info("execution awaiting review", zap.String("executionId", executionId), zap.String("nodeId", req.Node.Id))
	out := map[string]any{"status": REVIEW_AWAITING}
	if cfg.Instructions != "" {
		out["instructions"] = cfg.Instructions
	}
	if cfg.Reviewer != "" {
		out["reviewer"] = cfg.Reviewer
	}
	return &Result{Output: out, Paused: true}, nil
}
