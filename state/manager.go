package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/util"
	"go.uber.org/zap"
)

// Manager pairs the TTL-scoped fast tier with the durable tier. The fast tier
// is written first; the durable row trails it and never gets ahead.
type Manager struct {
	fast    persistence.StateStore
	durable persistence.ExecutionStore
	codec   util.EncoderDecoder[model.ExecutionState]
	ttl     time.Duration
	now     func() time.Time
}

func NewManager(fast persistence.StateStore, durable persistence.ExecutionStore, ttl time.Duration) *Manager {
	return &Manager{
		fast:    fast,
		durable: durable,
		codec:   util.NewJsonEncoderDecoder[model.ExecutionState](),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) SaveState(ctx context.Context, executionId string, st *model.ExecutionState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	data, err := m.codec.Encode(*st)
	if err != nil {
		return fmt.Errorf("encoding state of %s: %w", executionId, err)
	}
	return m.fast.SaveState(ctx, executionId, data, ttl)
}

// LoadState returns nil when the fast tier holds nothing for the execution.
func (m *Manager) LoadState(ctx context.Context, executionId string) (*model.ExecutionState, error) {
	data, err := m.fast.LoadState(ctx, executionId)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	st, err := m.codec.Decode(data)
	if err != nil {
		logger.Warn("discarding undecodable fast tier state", zap.String("executionId", executionId), zap.Error(err))
		return nil, nil
	}
	if st.ExecutionContext == nil {
		st.ExecutionContext = model.ExecutionContext{}
	}
	return st, nil
}

type storedOutput struct {
	Name    string         `json:"name"`
	Outputs map[string]any `json:"outputs"`
}

func (m *Manager) SaveNodeOutput(ctx context.Context, executionId string, nodeId string, name string, outputs map[string]any) error {
	data, err := json.Marshal(storedOutput{Name: name, Outputs: outputs})
	if err != nil {
		return fmt.Errorf("encoding output of node %s: %w", nodeId, err)
	}
	return m.fast.SaveNodeOutput(ctx, executionId, nodeId, data, m.ttl)
}

func (m *Manager) GetNodeOutputs(ctx context.Context, executionId string) (model.ExecutionContext, error) {
	raw, err := m.fast.GetNodeOutputs(ctx, executionId)
	if err != nil {
		return nil, err
	}
	out := make(model.ExecutionContext, len(raw))
	for nodeId, data := range raw {
		var so storedOutput
		if err := json.Unmarshal(data, &so); err != nil {
			logger.Warn("skipping undecodable node output", zap.String("executionId", executionId),
				zap.String("nodeId", nodeId), zap.Error(err))
			continue
		}
		if so.Outputs == nil {
			so.Outputs = map[string]any{}
		}
		out[nodeId] = so.Outputs
	}
	return out, nil
}

// SnapshotToDB copies the fast-tier state onto the durable row and appends
// the node output, in one durable transaction. An empty fast tier leaves the
// durable fields untouched. The durable status only moves along a valid
// transition and never out of paused or a terminal status, so an out-of-band
// pause or stop is never overwritten.
func (m *Manager) SnapshotToDB(ctx context.Context, executionId string, out *model.NodeOutput) error {
	st, err := m.LoadState(ctx, executionId)
	if err != nil {
		return err
	}
	var outputs []*model.NodeOutput
	if out != nil {
		if out.Id == "" {
			out.Id = uuid.New().String()
		}
		if out.CreatedAt.IsZero() {
			out.CreatedAt = m.now()
		}
		out.ExecutionId = executionId
		outputs = append(outputs, out)
	}
	_, err = m.durable.UpdateExecution(ctx, executionId, func(exec *model.WorkflowExecution) error {
		if st == nil {
			return nil
		}
		exec.ProgressPercent = st.ProgressPercent
		exec.CurrentNodeId = st.CurrentNodeId
		exec.ExecutionContext = st.ExecutionContext.Clone()
		exec.Usage = st.Usage
		if st.ErrorMessage != "" {
			exec.ErrorMessage = st.ErrorMessage
		}
		if st.Status != exec.Status && controlledByRun(exec.Status) {
			if err := exec.Transition(st.Status, m.now()); err != nil {
				logger.Debug("keeping durable status", zap.String("executionId", executionId),
					zap.String("durable", string(exec.Status)), zap.String("fast", string(st.Status)))
			}
		}
		if exec.Status == model.COMPLETED {
			exec.ProgressPercent = 100
		}
		return nil
	}, outputs...)
	if err != nil {
		logger.Error("error snapshotting execution", zap.String("executionId", executionId), zap.Error(err))
		return err
	}
	return nil
}

// controlledByRun reports whether the run loop owns the next transition.
// Paused and terminal rows only change through the control plane.
func controlledByRun(s model.ExecutionStatus) bool {
	return s == model.PENDING || s == model.RUNNING
}

// RestoreFromDB rebuilds the fast tier from the durable row and replays its
// node outputs in execution order.
func (m *Manager) RestoreFromDB(ctx context.Context, executionId string) (*model.ExecutionState, error) {
	exec, err := m.durable.GetExecution(ctx, executionId)
	if err != nil {
		return nil, err
	}
	outputs, err := m.durable.ListNodeOutputs(ctx, executionId)
	if err != nil {
		return nil, err
	}
	st := model.NewExecutionState(exec)
	for _, out := range outputs {
		fields := out.Outputs
		if fields == nil {
			fields = map[string]any{}
		}
		st.ExecutionContext[out.NodeId] = fields
	}
	for _, out := range outputs {
		if err := m.SaveNodeOutput(ctx, executionId, out.NodeId, out.Name, st.ExecutionContext[out.NodeId]); err != nil {
			return nil, err
		}
	}
	if err := m.SaveState(ctx, executionId, st, m.ttl); err != nil {
		return nil, err
	}
	logger.Info("restored execution state from durable store", zap.String("executionId", executionId),
		zap.Int("nodeOutputs", len(outputs)))
	return st, nil
}

func (m *Manager) DeleteState(ctx context.Context, executionId string) error {
	return m.fast.DeleteState(ctx, executionId)
}
