package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/analytics"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/conditional"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/loop"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metrics"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/provider"
	"go.uber.org/zap"
)

// Executor dispatches resolved nodes to their action and keeps one job row
// per attempt: pending, running, then completed, failed or halted.
type Executor struct {
	store   persistence.ExecutionStore
	actions map[model.NodeType]Action
	now     func() time.Time
}

func NewExecutor(store persistence.ExecutionStore, providers provider.Set, conditions *conditional.Executor, loops *loop.Executor) *Executor {
	e := &Executor{
		store:   store,
		actions: make(map[model.NodeType]Action),
		now:     time.Now,
	}
	text := NewTextGenerationAction(providers.Text, providers.Documents)
	e.Register(NewStartAction())
	e.Register(text)
	e.Register(text.As(model.NODE_TYPE_GENERATE_COPY))
	e.Register(NewImageGenerationAction(providers.Image, providers.Documents))
	e.Register(NewAttachAction(providers.Documents))
	e.Register(NewReviewAction(store))
	e.Register(NewConditionalAction(conditions))
	e.Register(NewLoopAction(loops))
	e.Register(NewContextRetrievalAction(providers.Context))
	e.Register(NewFinishAction(providers.Documents, providers.Notifier))
	return e
}

func (e *Executor) Register(a Action) {
	e.actions[a.Type()] = a
}

func (e *Executor) Supports(t model.NodeType) bool {
	_, ok := e.actions[t]
	return ok
}

func (e *Executor) Execute(ctx context.Context, req *Request) (*Result, error) {
	act, ok := e.actions[req.Node.Type]
	if !ok {
		return nil, fmt.Errorf("no action registered for node type %q", req.Node.Type)
	}
	executionId := req.executionId()
	job := &model.AgentJob{
		Id:             uuid.New().String(),
		ExecutionId:    executionId,
		NodeId:         req.Node.Id,
		NodeType:       req.Node.Type,
		ExecutionOrder: req.Order,
		Iteration:      req.Iteration,
		Status:         model.JOB_PENDING,
		CreatedAt:      e.now(),
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		logger.Error("error creating job", zap.String("executionId", executionId), zap.String("nodeId", req.Node.Id), zap.Error(err))
		return nil, err
	}
	started := e.now()
	job.Status = model.JOB_RUNNING
	job.StartedAt = &started
	if err := e.store.UpdateJob(ctx, job); err != nil {
		logger.Error("error marking job running", zap.String("executionId", executionId), zap.String("nodeId", req.Node.Id), zap.Error(err))
		return nil, err
	}
	logger.Info("running node", zap.String("executionId", executionId), zap.String("nodeId", req.Node.Id),
		zap.String("type", string(req.Node.Type)), zap.Int("iteration", req.Iteration))

	res, err := act.Execute(ctx, req)
	finished := e.now()
	job.CompletedAt = &finished
	elapsed := finished.Sub(started)
	if errors.Is(err, ErrHalted) {
		job.Status = model.JOB_HALTED
		if uerr := e.store.UpdateJob(context.WithoutCancel(ctx), job); uerr != nil {
			logger.Error("error marking job halted", zap.String("executionId", executionId), zap.String("nodeId", req.Node.Id), zap.Error(uerr))
		}
		metrics.RecordNode(ctx, string(req.Node.Type), string(model.JOB_HALTED), elapsed)
		logger.Info("node halted", zap.String("executionId", executionId), zap.String("nodeId", req.Node.Id))
		return nil, err
	}
	if err != nil {
		job.Status = model.JOB_FAILED
		job.Error = err.Error()
		if uerr := e.store.UpdateJob(context.WithoutCancel(ctx), job); uerr != nil {
			logger.Error("error marking job failed", zap.String("executionId", executionId), zap.String("nodeId", req.Node.Id), zap.Error(uerr))
		}
		metrics.RecordNode(ctx, string(req.Node.Type), string(model.JOB_FAILED), elapsed)
		analytics.RecordNodeFailure(executionId, req.Node.Id, string(req.Node.Type), req.Iteration, err.Error())
		logger.Error("node failed", zap.String("executionId", executionId), zap.String("nodeId", req.Node.Id), zap.Error(err))
		return nil, err
	}
	if res.Output == nil {
		res.Output = map[string]any{}
	}
	job.Status = model.JOB_COMPLETED
	job.Output = res.Output
	if err := e.store.UpdateJob(ctx, job); err != nil {
		logger.Error("error marking job completed", zap.String("executionId", executionId), zap.String("nodeId", req.Node.Id), zap.Error(err))
		return nil, err
	}
	res.Job = job
	metrics.RecordNode(ctx, string(req.Node.Type), string(model.JOB_COMPLETED), elapsed)
	analytics.RecordNodeSuccess(executionId, req.Node.Id, string(req.Node.Type), req.Iteration, res.Output)
	return res, nil
}
