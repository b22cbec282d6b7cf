package flow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metadata"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/state"
	"go.uber.org/zap"
)

// Service is the control plane for executions: launching them and applying
// out-of-band pause, resume and stop requests.
type Service struct {
	templates TemplateSource
	store     persistence.ExecutionStore
	state     *state.Manager
	executor  *Executor
	launcher  Launcher
	validator *metadata.Validator
	now       func() time.Time
}

func NewService(templates TemplateSource, store persistence.ExecutionStore, st *state.Manager, executor *Executor, launcher Launcher) *Service {
	return &Service{
		templates: templates,
		store:     store,
		state:     st,
		executor:  executor,
		launcher:  launcher,
		validator: metadata.NewValidator(),
		now:       time.Now,
	}
}

func (s *Service) Executor() *Executor {
	return s.executor
}

// Launch validates the template and creates a pending execution. Async
// requests are handed to the launcher; otherwise the caller drives the run,
// typically through Executor.Stream.
func (s *Service) Launch(ctx context.Context, req model.LaunchRequest) (*model.WorkflowExecution, error) {
	tpl, err := s.templates.GetTemplate(req.TemplateId)
	if err != nil {
		return nil, err
	}
	if res := s.validator.Validate(tpl); !res.Valid {
		return nil, res.Err()
	}
	input := make(map[string]any, len(tpl.DefaultParams)+len(req.Input))
	for k, v := range tpl.DefaultParams {
		input[k] = v
	}
	for k, v := range req.Input {
		input[k] = v
	}
	exec := &model.WorkflowExecution{
		Id:               uuid.New().String(),
		TemplateId:       tpl.Id,
		TemplateVersion:  tpl.Version,
		ProjectId:        req.ProjectId,
		WorkspaceId:      req.WorkspaceId,
		UserId:           req.UserId,
		Status:           model.PENDING,
		ExecutionContext: model.ExecutionContext{},
		InputConfig:      input,
		CreatedAt:        s.now(),
	}
	if exec.WorkspaceId == "" {
		exec.WorkspaceId = tpl.WorkspaceId
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		logger.Error("error creating execution", zap.String("templateId", tpl.Id), zap.Error(err))
		return nil, err
	}
	if err := s.state.SaveState(ctx, exec.Id, model.NewExecutionState(exec), 0); err != nil {
		logger.Warn("error seeding fast tier", zap.String("executionId", exec.Id), zap.Error(err))
	}
	logger.Info("execution created", zap.String("executionId", exec.Id), zap.String("templateId", tpl.Id),
		zap.Bool("async", req.IsAsync()))
	if req.IsAsync() {
		if err := s.launcher.Launch(exec.Id); err != nil {
			return exec, err
		}
	}
	return exec, nil
}

// Get returns the durable row with live progress from the fast tier laid
// over it while the run is active.
func (s *Service) Get(ctx context.Context, executionId string) (*model.WorkflowExecution, error) {
	exec, err := s.store.GetExecution(ctx, executionId)
	if err != nil {
		return nil, err
	}
	if exec.Status != model.RUNNING {
		return exec, nil
	}
	st, err := s.state.LoadState(ctx, executionId)
	if err != nil || st == nil {
		return exec, nil
	}
	if st.ProgressPercent > exec.ProgressPercent {
		exec.ProgressPercent = st.ProgressPercent
	}
	if st.CurrentNodeId != "" {
		exec.CurrentNodeId = st.CurrentNodeId
	}
	return exec, nil
}

func (s *Service) Jobs(ctx context.Context, executionId string) ([]*model.AgentJob, error) {
	return s.store.ListJobs(ctx, executionId)
}

func (s *Service) Pause(ctx context.Context, executionId string) (*model.WorkflowExecution, error) {
	return s.transition(ctx, executionId, model.PAUSED)
}

func (s *Service) Stop(ctx context.Context, executionId string) (*model.WorkflowExecution, error) {
	exec, err := s.transition(ctx, executionId, model.STOPPED)
	if err != nil {
		return nil, err
	}
	if err := s.state.DeleteState(ctx, executionId); err != nil {
		logger.Warn("error deleting fast tier state", zap.String("executionId", executionId), zap.Error(err))
	}
	return exec, nil
}

func (s *Service) transition(ctx context.Context, executionId string, to model.ExecutionStatus) (*model.WorkflowExecution, error) {
	exec, err := s.store.UpdateExecution(ctx, executionId, func(exec *model.WorkflowExecution) error {
		return exec.Transition(to, s.now())
	})
	if err != nil {
		logger.Warn("rejected status change", zap.String("executionId", executionId), zap.String("to", string(to)), zap.Error(err))
		return nil, err
	}
	logger.Info("execution status changed", zap.String("executionId", executionId), zap.String("status", string(to)))
	return exec, nil
}

// Resume moves a paused execution back to running and relaunches it. When
// the pause came from a review gate, reviewer data is merged into that
// node's output and recorded as a new node output row.
func (s *Service) Resume(ctx context.Context, executionId string, req model.ResumeRequest) (*model.WorkflowExecution, error) {
	current, err := s.store.GetExecution(ctx, executionId)
	if err != nil {
		return nil, err
	}
	var reviewed *model.NodeOutput
	if !req.IsEmpty() {
		reviewed, err = s.reviewOutput(ctx, current, req)
		if err != nil {
			return nil, err
		}
	}
	var extra []*model.NodeOutput
	if reviewed != nil {
		extra = append(extra, reviewed)
	}
	exec, err := s.store.UpdateExecution(ctx, executionId, func(exec *model.WorkflowExecution) error {
		if err := exec.Transition(model.RUNNING, s.now()); err != nil {
			return err
		}
		if reviewed != nil {
			if exec.ExecutionContext == nil {
				exec.ExecutionContext = model.ExecutionContext{}
			}
			exec.ExecutionContext[reviewed.NodeId] = reviewed.Outputs
		}
		return nil
	}, extra...)
	if err != nil {
		logger.Warn("rejected resume", zap.String("executionId", executionId), zap.Error(err))
		return nil, err
	}
	if err := s.syncFastTier(ctx, exec, reviewed); err != nil {
		logger.Warn("error syncing fast tier on resume", zap.String("executionId", executionId), zap.Error(err))
	}
	logger.Info("execution resumed", zap.String("executionId", executionId))
	if err := s.launcher.Launch(executionId); err != nil {
		return exec, err
	}
	return exec, nil
}

func (s *Service) reviewOutput(ctx context.Context, exec *model.WorkflowExecution, req model.ResumeRequest) (*model.NodeOutput, error) {
	if exec.CurrentNodeId == "" {
		return nil, nil
	}
	tpl, err := s.templates.GetTemplate(exec.TemplateId)
	if err != nil {
		return nil, err
	}
	node, ok := tpl.Node(exec.CurrentNodeId)
	if !ok || node.Type != model.NODE_TYPE_REVIEW {
		return nil, nil
	}
	outputs := make(map[string]any)
	for k, v := range exec.ExecutionContext[node.Id] {
		outputs[k] = v
	}
	for k, v := range req.Data {
		outputs[k] = v
	}
	outputs["status"] = "reviewed"
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}
	outputs["approved"] = approved
	if req.Feedback != "" {
		outputs["feedback"] = req.Feedback
	}
	order := 0
	if rows, err := s.store.ListNodeOutputs(ctx, exec.Id); err == nil {
		for _, row := range rows {
			if row.NodeId == node.Id {
				order = row.ExecutionOrder
			}
		}
	}
	return &model.NodeOutput{
		Id:             uuid.New().String(),
		ExecutionId:    exec.Id,
		NodeId:         node.Id,
		NodeType:       node.Type,
		Name:           node.DisplayName(),
		ExecutionOrder: order,
		Outputs:        outputs,
		CreatedAt:      s.now(),
	}, nil
}

func (s *Service) syncFastTier(ctx context.Context, exec *model.WorkflowExecution, reviewed *model.NodeOutput) error {
	st, err := s.state.LoadState(ctx, exec.Id)
	if err != nil {
		return err
	}
	if st == nil {
		_, err = s.state.RestoreFromDB(ctx, exec.Id)
		return err
	}
	st.Status = model.RUNNING
	if reviewed != nil {
		st.ExecutionContext[reviewed.NodeId] = reviewed.Outputs
		if err := s.state.SaveNodeOutput(ctx, exec.Id, reviewed.NodeId, reviewed.Name, reviewed.Outputs); err != nil {
			return err
		}
	}
	return s.state.SaveState(ctx, exec.Id, st, 0)
}
