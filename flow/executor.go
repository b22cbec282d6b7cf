package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/action"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/loop"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metadata"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/resolver"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/state"
	"go.uber.org/zap"
)

// ErrHalted means the run stopped at a node boundary because the execution
// was paused or stopped. The execution is not failed.
var ErrHalted = action.ErrHalted

// ErrRunClaimed means another runner holds the execution's run lease. It
// wraps ErrHalted: the execution is not failed.
var ErrRunClaimed = fmt.Errorf("%w: run lease held by another runner", ErrHalted)

// DEFAULT_RUN_LEASE bounds how long a runner that died mid-node keeps other
// runners out of its execution. Every node boundary renews it.
const DEFAULT_RUN_LEASE = 5 * time.Minute

type Emitter func(ev model.ProgressEvent)

type TemplateSource interface {
	GetTemplate(id string) (*model.WorkflowTemplate, error)
}

// Executor drives one execution through its template, node by node, in the
// order computed by the resolver.
type Executor struct {
	templates TemplateSource
	store     persistence.ExecutionStore
	state     *state.Manager
	nodes     *action.Executor
	validator *metadata.Validator
	lease     time.Duration
	now       func() time.Time
}

func NewExecutor(templates TemplateSource, store persistence.ExecutionStore, st *state.Manager, nodes *action.Executor) *Executor {
	return &Executor{
		templates: templates,
		store:     store,
		state:     st,
		nodes:     nodes,
		validator: metadata.NewValidator(),
		lease:     DEFAULT_RUN_LEASE,
		now:       time.Now,
	}
}

func (e *Executor) WithRunLease(d time.Duration) *Executor {
	if d > 0 {
		e.lease = d
	}
	return e
}

// run carries the per-execution bookkeeping of one Run call. Nodes and
// storage calls use ctx, which never cancels; interrupt is the caller's
// context and is only observed at node boundaries.
type run struct {
	ctx       context.Context
	interrupt context.Context
	token     string
	exec      *model.WorkflowExecution
	tpl       *model.WorkflowTemplate
	all       []string
	order     []string
	st        *model.ExecutionState
	skipped   map[string]bool
	completed []string
	emit      Emitter
}

// Stream claims the execution and runs it on its own goroutine, returning
// its events. The run outlives ctx; ctx only bounds the delivery of events.
// The channel closes when the run returns. ErrRunClaimed is returned when the
// execution is already being run.
func (e *Executor) Stream(ctx context.Context, executionId string) (<-chan model.ProgressEvent, error) {
	events := make(chan model.ProgressEvent, 16)
	r, err := e.start(context.WithoutCancel(ctx), executionId, func(ev model.ProgressEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(events)
		if err := e.drive(r); err != nil && !errors.Is(err, ErrHalted) {
			logger.Debug("streamed run ended with error", zap.String("executionId", executionId), zap.Error(err))
		}
	}()
	return events, nil
}

// Run executes every pending node of the execution. Nodes that already have
// an output are skipped, so calling Run again after a pause or a crash
// resumes the run. ErrHalted is returned when a pause or stop is observed,
// and when ctx is cancelled: the node in flight finishes and the execution
// is paused so it can be resumed.
func (e *Executor) Run(ctx context.Context, executionId string, emit Emitter) error {
	r, err := e.start(ctx, executionId, emit)
	if err != nil {
		return err
	}
	return e.drive(r)
}

// start claims the run lease and prepares the run. Only one runner at a
// time gets past it for a given execution.
func (e *Executor) start(ctx context.Context, executionId string, emit Emitter) (*run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if emit == nil {
		emit = func(model.ProgressEvent) {}
	}
	r := &run{
		ctx:       context.WithoutCancel(ctx),
		interrupt: ctx,
		token:     uuid.New().String(),
		skipped:   map[string]bool{},
		emit:      emit,
	}
	exec, err := e.claim(r, executionId)
	if err != nil {
		return nil, err
	}
	r.exec = exec

	r.tpl, err = e.templates.GetTemplate(exec.TemplateId)
	if err != nil {
		return nil, e.fail(r, fmt.Errorf("loading template %s: %w", exec.TemplateId, err))
	}
	if res := e.validator.Validate(r.tpl); !res.Valid {
		return nil, e.fail(r, res.Err())
	}
	order, err := resolver.BuildExecutionOrder(r.tpl)
	if err != nil {
		return nil, e.fail(r, err)
	}
	r.all = order
	bodies := r.tpl.LoopBodies()
	for _, id := range order {
		if _, inLoop := bodies[id]; !inLoop {
			r.order = append(r.order, id)
		}
	}
	if err := e.loadState(r); err != nil {
		return nil, e.fail(r, err)
	}
	logger.Info("running execution", zap.String("executionId", executionId), zap.String("templateId", r.tpl.Id),
		zap.Int("nodes", len(r.order)), zap.Int("done", len(r.st.ExecutionContext)))
	return r, nil
}

// claim moves a pending execution to running and takes the run lease in one
// durable update.
func (e *Executor) claim(r *run, executionId string) (*model.WorkflowExecution, error) {
	now := e.now()
	exec, err := e.store.UpdateExecution(r.ctx, executionId, func(exec *model.WorkflowExecution) error {
		switch {
		case exec.Status == model.PAUSED || exec.Status == model.STOPPED:
			return ErrHalted
		case exec.Status.IsTerminal():
			return fmt.Errorf("execution %s already %s", executionId, exec.Status)
		case exec.Claimed(r.token, now):
			return ErrRunClaimed
		case exec.Status == model.PENDING:
			if err := exec.Transition(model.RUNNING, now); err != nil {
				return err
			}
		}
		until := now.Add(e.lease)
		exec.RunOwner = r.token
		exec.RunLeaseUntil = &until
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrHalted) {
			logger.Info("execution is not runnable", zap.String("executionId", executionId), zap.Error(err))
		}
		return nil, err
	}
	return exec, nil
}

// drive walks the execution order from the first node without an output.
func (e *Executor) drive(r *run) error {
	defer e.release(r)
	executionId := r.exec.Id
	total := len(r.order)
	for i, nodeId := range r.order {
		if _, err := e.boundary(r); err != nil {
			return err
		}
		node, _ := r.tpl.Node(nodeId)
		if r.st.ExecutionContext.Has(nodeId) {
			logger.Debug("skipping completed node", zap.String("executionId", executionId), zap.String("nodeId", nodeId))
			r.completed = append(r.completed, nodeId)
			continue
		}
		if !e.active(r, nodeId) {
			r.skipped[nodeId] = true
			r.emit(model.ProgressEvent{Type: model.EVENT_PROGRESS, NodeId: nodeId, Message: "Skipped " + node.DisplayName(), Progress: percent(i+1, total)})
			continue
		}
		r.emit(model.ProgressEvent{Type: model.EVENT_PROGRESS, NodeId: nodeId, Message: "Executing " + node.DisplayName(), Progress: percent(i, total)})
		r.st.CurrentNodeId = nodeId
		if err := e.state.SaveState(r.ctx, executionId, r.st, 0); err != nil {
			return e.fail(r, err)
		}

		res, err := e.execute(r, node, i, 0)
		if err != nil {
			if errors.Is(err, ErrHalted) {
				return err
			}
			return e.fail(r, fmt.Errorf("node %s failed: %w", nodeId, err))
		}
		if err := e.record(r, node, i, res, percent(i+1, total)); err != nil {
			return e.fail(r, err)
		}
		r.emit(model.ProgressEvent{Type: model.EVENT_NODE_COMPLETE, NodeId: nodeId, Message: "Completed " + node.DisplayName(),
			Progress: r.st.ProgressPercent, Data: res.Output})
		if res.Paused {
			logger.Info("execution paused by node", zap.String("executionId", executionId), zap.String("nodeId", nodeId))
			cur, err := e.boundary(r)
			if err != nil {
				return err
			}
			// resumed before this run let go of the lease
			if fields, ok := cur.ExecutionContext[nodeId]; ok {
				r.st.ExecutionContext[nodeId] = fields
			}
		}
	}
	return e.complete(r)
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}

// loadState prefers the fast tier and rebuilds it from the durable tier when
// it is gone.
func (e *Executor) loadState(r *run) error {
	st, err := e.state.LoadState(r.ctx, r.exec.Id)
	if err != nil {
		logger.Warn("fast tier unavailable, restoring from durable store", zap.String("executionId", r.exec.Id), zap.Error(err))
	}
	if st == nil {
		st, err = e.state.RestoreFromDB(r.ctx, r.exec.Id)
		if err != nil {
			return err
		}
	} else {
		// node outputs are written before the state blob, so they can be ahead of it
		outputs, err := e.state.GetNodeOutputs(r.ctx, r.exec.Id)
		if err != nil {
			logger.Warn("error reading fast tier node outputs", zap.String("executionId", r.exec.Id), zap.Error(err))
		}
		for nodeId, fields := range outputs {
			st.ExecutionContext[nodeId] = fields
		}
	}
	for nodeId, fields := range r.exec.ExecutionContext {
		if !st.ExecutionContext.Has(nodeId) {
			st.ExecutionContext[nodeId] = fields
		}
	}
	st.Status = model.RUNNING
	st.ErrorMessage = ""
	r.st = st
	return e.state.SaveState(r.ctx, r.exec.Id, st, 0)
}

// boundary renews the run lease and observes pause and stop, which other
// callers set on the durable row. A cancelled interrupt context pauses the
// execution. Halting releases the lease in the same update, so a resume
// that lands after it can claim the run and one that lands before it is
// picked up by this run.
func (e *Executor) boundary(r *run) (*model.WorkflowExecution, error) {
	interrupted := r.interrupt.Err() != nil
	now := e.now()
	var halted, lost bool
	cur, err := e.store.UpdateExecution(r.ctx, r.exec.Id, func(exec *model.WorkflowExecution) error {
		halted, lost = false, false
		if exec.RunOwner != r.token {
			lost = true
			return nil
		}
		if interrupted && exec.Status == model.RUNNING {
			if err := exec.Transition(model.PAUSED, now); err != nil {
				return err
			}
		}
		if exec.Status != model.RUNNING {
			halted = true
			exec.Release(r.token)
			return nil
		}
		until := now.Add(e.lease)
		exec.RunLeaseUntil = &until
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch {
	case lost:
		logger.Warn("run lease taken over", zap.String("executionId", r.exec.Id))
		return nil, ErrRunClaimed
	case halted:
		logger.Info("execution halted", zap.String("executionId", r.exec.Id), zap.String("status", string(cur.Status)),
			zap.Bool("interrupted", interrupted))
		return cur, ErrHalted
	}
	return cur, nil
}

func (e *Executor) release(r *run) {
	_, err := e.store.UpdateExecution(r.ctx, r.exec.Id, func(exec *model.WorkflowExecution) error {
		exec.Release(r.token)
		return nil
	})
	if err != nil {
		logger.Warn("error releasing run lease", zap.String("executionId", r.exec.Id), zap.Error(err))
	}
}

// active reports whether any incoming edge of the node is live. An edge is
// dead when its source was skipped or when it carries a branch the source
// conditional did not take.
func (e *Executor) active(r *run, nodeId string) bool {
	incoming := 0
	for _, edge := range r.tpl.Edges {
		if edge.Target != nodeId {
			continue
		}
		incoming++
		if r.skipped[edge.Source] {
			continue
		}
		if edge.Branch != "" {
			if out, ok := r.st.ExecutionContext[edge.Source]; ok {
				if taken, _ := out["branch"].(string); taken != edge.Branch {
					continue
				}
			}
		}
		return true
	}
	return incoming == 0
}

func (e *Executor) execute(r *run, node model.Node, order int, iteration int) (*action.Result, error) {
	cfg, err := resolver.ResolveConfig(node, r.st.ExecutionContext)
	if err != nil {
		return nil, err
	}
	req := &action.Request{
		Execution: r.exec,
		Node:      node,
		Config:    cfg,
		Context:   r.st.ExecutionContext,
		Completed: r.completed,
		Order:     order,
		Iteration: iteration,
	}
	if loopCfg, ok := cfg.(*model.LoopConfig); ok {
		req.Body = e.loopBody(r, node.Id, loopCfg, order)
	}
	res, err := e.nodes.Execute(r.ctx, req)
	if err != nil {
		return nil, err
	}
	r.st.Usage = r.st.Usage.Add(res.Usage)
	return res, nil
}

// loopBody runs the loop's body nodes in execution order once per
// iteration. Each body node is a node boundary like any other.
func (e *Executor) loopBody(r *run, loopId string, cfg *model.LoopConfig, order int) loop.Body {
	members := make(map[string]bool, len(cfg.Body))
	for _, id := range cfg.Body {
		members[id] = true
	}
	body := make([]string, 0, len(cfg.Body))
	for _, id := range r.all {
		if members[id] {
			body = append(body, id)
		}
	}
	return func(_ context.Context, it loop.Iteration) (map[string]any, error) {
		outputs := make(map[string]any, len(body))
		for _, id := range body {
			if _, err := e.boundary(r); err != nil {
				return nil, err
			}
			node, _ := r.tpl.Node(id)
			res, err := e.execute(r, node, order, it.Index)
			if err != nil {
				return nil, err
			}
			if res.Paused {
				return nil, ErrHalted
			}
			r.st.ExecutionContext[id] = res.Output
			outputs[id] = res.Output
			if err := e.recordIteration(r, node, order, it.Index, res); err != nil {
				return nil, err
			}
		}
		r.emit(model.ProgressEvent{Type: model.EVENT_PROGRESS, NodeId: loopId,
			Message: fmt.Sprintf("Iteration %d finished", it.Index+1), Progress: r.st.ProgressPercent,
			Data: map[string]any{loop.ITERATION_FIELD: it.Index + 1}})
		return outputs, nil
	}
}

// recordIteration keeps a durable row per body node and iteration. Body
// rows share the loop's execution order, ahead of the loop's own row.
func (e *Executor) recordIteration(r *run, node model.Node, order int, iteration int, res *action.Result) error {
	executionId := r.exec.Id
	if err := e.state.SaveNodeOutput(r.ctx, executionId, node.Id, node.DisplayName(), res.Output); err != nil {
		return err
	}
	if err := e.state.SaveState(r.ctx, executionId, r.st, 0); err != nil {
		return err
	}
	return e.state.SnapshotToDB(r.ctx, executionId, &model.NodeOutput{
		NodeId:         node.Id,
		NodeType:       node.Type,
		Name:           node.DisplayName(),
		ExecutionOrder: order,
		Iteration:      iteration,
		Outputs:        res.Output,
	})
}

// record writes the fast tier first and then snapshots it to the durable tier.
func (e *Executor) record(r *run, node model.Node, order int, res *action.Result, progress int) error {
	executionId := r.exec.Id
	r.st.ExecutionContext[node.Id] = res.Output
	r.st.ProgressPercent = progress
	r.st.CurrentNodeId = node.Id
	r.completed = append(r.completed, node.Id)
	if err := e.state.SaveNodeOutput(r.ctx, executionId, node.Id, node.DisplayName(), res.Output); err != nil {
		return err
	}
	if err := e.state.SaveState(r.ctx, executionId, r.st, 0); err != nil {
		return err
	}
	return e.state.SnapshotToDB(r.ctx, executionId, &model.NodeOutput{
		NodeId:         node.Id,
		NodeType:       node.Type,
		Name:           node.DisplayName(),
		ExecutionOrder: order,
		Outputs:        res.Output,
	})
}

func (e *Executor) complete(r *run) error {
	executionId := r.exec.Id
	r.st.Status = model.COMPLETED
	r.st.ProgressPercent = 100
	r.st.CurrentNodeId = ""
	if err := e.state.SaveState(r.ctx, executionId, r.st, 0); err != nil {
		return e.fail(r, err)
	}
	if err := e.state.SnapshotToDB(r.ctx, executionId, nil); err != nil {
		return e.fail(r, err)
	}
	exec, err := e.store.GetExecution(r.ctx, executionId)
	if err != nil {
		return err
	}
	if exec.Status != model.COMPLETED {
		logger.Info("execution halted before completion", zap.String("executionId", executionId), zap.String("status", string(exec.Status)))
		return ErrHalted
	}
	if err := e.state.DeleteState(r.ctx, executionId); err != nil {
		logger.Warn("error deleting fast tier state", zap.String("executionId", executionId), zap.Error(err))
	}
	logger.Info("execution completed", zap.String("executionId", executionId), zap.Int("tokens", r.st.Usage.Total()))
	r.emit(model.ProgressEvent{Type: model.EVENT_COMPLETE, Message: "Workflow completed", Progress: 100, Data: map[string]any{
		"execution_context": r.st.ExecutionContext,
		"usage":             r.st.Usage,
	}})
	return nil
}

// fail marks the execution failed, fast tier first, and gives up the run
// lease. A paused or stopped execution, or one another runner has taken
// over, keeps its status. The cause is returned.
func (e *Executor) fail(r *run, cause error) error {
	executionId := r.exec.Id
	ctx := r.ctx
	logger.Error("execution failed", zap.String("executionId", executionId), zap.Error(cause))
	if r.st != nil {
		r.st.Status = model.FAILED
		r.st.ErrorMessage = cause.Error()
		if err := e.state.SaveState(ctx, executionId, r.st, 0); err != nil {
			logger.Warn("error saving failed state", zap.String("executionId", executionId), zap.Error(err))
		}
	}
	_, err := e.store.UpdateExecution(ctx, executionId, func(exec *model.WorkflowExecution) error {
		if !exec.Release(r.token) || exec.Status != model.RUNNING {
			return nil
		}
		if r.st != nil {
			exec.ExecutionContext = r.st.ExecutionContext.Clone()
			exec.Usage = r.st.Usage
		}
		exec.ErrorMessage = cause.Error()
		return exec.Transition(model.FAILED, e.now())
	})
	if err != nil {
		logger.Error("error marking execution failed", zap.String("executionId", executionId), zap.Error(err))
	}
	r.emit(model.ProgressEvent{Type: model.EVENT_ERROR, NodeId: currentNode(r), Message: cause.Error(), Progress: progressOf(r)})
	return cause
}

func currentNode(r *run) string {
	if r.st == nil {
		return ""
	}
	return r.st.CurrentNodeId
}

func progressOf(r *run) int {
	if r.st == nil {
		return 0
	}
	return r.st.ProgressPercent
}
