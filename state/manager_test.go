package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence/memory"
)

func newTestManager(t *testing.T) (*Manager, *memory.ExecutionStore) {
	durable := memory.NewExecutionStore()
	mgr := NewManager(memory.NewStateStore(), durable, time.Hour)
	err := durable.CreateExecution(context.Background(), &model.WorkflowExecution{
		Id:               "exec-1",
		TemplateId:       "tpl-1",
		Status:           model.PENDING,
		ExecutionContext: model.ExecutionContext{},
		CreatedAt:        time.Now(),
	})
	require.NoError(t, err)
	return mgr, durable
}

func TestSaveAndLoadState(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	st, err := mgr.LoadState(ctx, "exec-1")
	require.NoError(t, err)
	require.Nil(t, st)

	err = mgr.SaveState(ctx, "exec-1", &model.ExecutionState{
		Status:           model.RUNNING,
		ProgressPercent:  40,
		CurrentNodeId:    "gen",
		ExecutionContext: model.ExecutionContext{"start": {"topic": "go"}},
	}, 0)
	require.NoError(t, err)

	st, err = mgr.LoadState(ctx, "exec-1")
	require.NoError(t, err)
	require.Equal(t, model.RUNNING, st.Status)
	require.Equal(t, 40, st.ProgressPercent)
	require.Equal(t, "go", st.ExecutionContext["start"]["topic"])
}

func TestLoadStateAfterExpiry(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	err := mgr.SaveState(ctx, "exec-1", &model.ExecutionState{Status: model.RUNNING}, 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	st, err := mgr.LoadState(ctx, "exec-1")
	require.NoError(t, err)
	require.Nil(t, st)
}

func TestNodeOutputs(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	require.NoError(t, mgr.SaveNodeOutput(ctx, "exec-1", "a", "A", map[string]any{"content": "x"}))
	require.NoError(t, mgr.SaveNodeOutput(ctx, "exec-1", "b", "B", map[string]any{"count": 2}))

	outs, err := mgr.GetNodeOutputs(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, outs, 2)
	require.Equal(t, "x", outs["a"]["content"])
	require.EqualValues(t, 2, outs["b"]["count"])

	require.NoError(t, mgr.DeleteState(ctx, "exec-1"))
	outs, err = mgr.GetNodeOutputs(ctx, "exec-1")
	require.NoError(t, err)
	require.Empty(t, outs)
}

func TestSnapshotAndRestore(t *testing.T) {
	ctx := context.Background()
	mgr, durable := newTestManager(t)

	_, err := durable.UpdateExecution(ctx, "exec-1", func(exec *model.WorkflowExecution) error {
		return exec.Transition(model.RUNNING, time.Now())
	})
	require.NoError(t, err)

	st := &model.ExecutionState{Status: model.RUNNING, ExecutionContext: model.ExecutionContext{}}
	nodes := []string{"start", "gen", "finish"}
	for i, nodeId := range nodes {
		fields := map[string]any{"content": nodeId + "-out"}
		st.ExecutionContext[nodeId] = fields
		st.CurrentNodeId = nodeId
		st.ProgressPercent = (i + 1) * 100 / len(nodes)
		require.NoError(t, mgr.SaveState(ctx, "exec-1", st, 0))
		require.NoError(t, mgr.SaveNodeOutput(ctx, "exec-1", nodeId, nodeId, fields))
		require.NoError(t, mgr.SnapshotToDB(ctx, "exec-1", &model.NodeOutput{
			NodeId:         nodeId,
			Name:           nodeId,
			ExecutionOrder: i,
			Outputs:        fields,
		}))
	}

	exec, err := durable.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Equal(t, "finish", exec.CurrentNodeId)
	require.Equal(t, 100, exec.ProgressPercent)
	require.Len(t, exec.ExecutionContext, 3)

	// fast tier lost
	require.NoError(t, mgr.DeleteState(ctx, "exec-1"))

	restored, err := mgr.RestoreFromDB(ctx, "exec-1")
	require.NoError(t, err)
	require.Equal(t, "finish", restored.CurrentNodeId)
	for _, nodeId := range nodes {
		require.Equal(t, nodeId+"-out", restored.ExecutionContext[nodeId]["content"])
	}

	outs, err := mgr.GetNodeOutputs(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, outs, 3)

	loaded, err := mgr.LoadState(ctx, "exec-1")
	require.NoError(t, err)
	require.Equal(t, restored.ExecutionContext, loaded.ExecutionContext)

	rows, err := durable.ListNodeOutputs(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		require.Equal(t, nodes[i], row.NodeId)
		require.NotEmpty(t, row.Id)
	}
}

func TestSnapshotWithoutFastState(t *testing.T) {
	ctx := context.Background()
	mgr, durable := newTestManager(t)

	_, err := durable.UpdateExecution(ctx, "exec-1", func(exec *model.WorkflowExecution) error {
		exec.ProgressPercent = 30
		exec.CurrentNodeId = "kept"
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, mgr.SnapshotToDB(ctx, "exec-1", nil))

	exec, err := durable.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Equal(t, 30, exec.ProgressPercent)
	require.Equal(t, "kept", exec.CurrentNodeId)
	require.Equal(t, model.PENDING, exec.Status)
}

func TestSnapshotStatus(t *testing.T) {
	scenarios := map[string]struct {
		durable  model.ExecutionStatus
		fast     model.ExecutionStatus
		expected model.ExecutionStatus
	}{
		"running to completed": {durable: model.RUNNING, fast: model.COMPLETED, expected: model.COMPLETED},
		"pending to running":   {durable: model.PENDING, fast: model.RUNNING, expected: model.RUNNING},
		"pause is kept":        {durable: model.PAUSED, fast: model.COMPLETED, expected: model.PAUSED},
		"stop is kept":         {durable: model.STOPPED, fast: model.RUNNING, expected: model.STOPPED},
		"pause not resumed":    {durable: model.PAUSED, fast: model.RUNNING, expected: model.PAUSED},
	}
	for name, scenario := range scenarios {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mgr, durable := newTestManager(t)
			_, err := durable.UpdateExecution(ctx, "exec-1", func(exec *model.WorkflowExecution) error {
				exec.Status = scenario.durable
				return nil
			})
			require.NoError(t, err)

			require.NoError(t, mgr.SaveState(ctx, "exec-1", &model.ExecutionState{
				Status:           scenario.fast,
				ExecutionContext: model.ExecutionContext{},
			}, 0))
			require.NoError(t, mgr.SnapshotToDB(ctx, "exec-1", nil))

			exec, err := durable.GetExecution(ctx, "exec-1")
			require.NoError(t, err)
			require.Equal(t, scenario.expected, exec.Status)
		})
	}
}

func TestRestoreMissingExecution(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.RestoreFromDB(context.Background(), "nope")
	require.Error(t, err)
}
