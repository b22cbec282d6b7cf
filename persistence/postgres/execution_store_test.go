package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
)

func TestPostgresExecutionStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("contentflow"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	store := NewExecutionStore(pool)
	require.NoError(t, store.Migrate(ctx))

	exec := &model.WorkflowExecution{
		Id:               "exec-1",
		TemplateId:       "tpl",
		Status:           model.PENDING,
		ExecutionContext: model.ExecutionContext{},
		InputConfig:      map[string]any{"topic": "shoes"},
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, store.CreateExecution(ctx, exec))

	t.Run("missing execution", func(t *testing.T) {
		_, err := store.GetExecution(ctx, "nope")
		require.ErrorAs(t, err, &persistence.NotFoundError{})
	})

	t.Run("failed update writes nothing", func(t *testing.T) {
		_, err := store.UpdateExecution(ctx, "exec-1", func(e *model.WorkflowExecution) error {
			e.ProgressPercent = 90
			return errors.New("abort")
		})
		require.Error(t, err)
		got, err := store.GetExecution(ctx, "exec-1")
		require.NoError(t, err)
		require.Equal(t, 0, got.ProgressPercent)
	})

	t.Run("update with outputs", func(t *testing.T) {
		updated, err := store.UpdateExecution(ctx, "exec-1", func(e *model.WorkflowExecution) error {
			if err := e.Transition(model.RUNNING, time.Now()); err != nil {
				return err
			}
			e.ExecutionContext["start"] = map[string]any{"topic": "shoes"}
			e.ProgressPercent = 50
			return nil
		},
			&model.NodeOutput{Id: "o2", NodeId: "copy", NodeType: model.NODE_TYPE_TEXT_GENERATION, ExecutionOrder: 1,
				Outputs: map[string]any{"content": "Buy shoes"}, CreatedAt: time.Now()},
			&model.NodeOutput{Id: "o1", NodeId: "start", NodeType: model.NODE_TYPE_START, ExecutionOrder: 0,
				Outputs: map[string]any{"topic": "shoes"}, CreatedAt: time.Now()},
		)
		require.NoError(t, err)
		require.Equal(t, model.RUNNING, updated.Status)

		got, err := store.GetExecution(ctx, "exec-1")
		require.NoError(t, err)
		require.NotNil(t, got.StartedAt)
		require.Equal(t, "shoes", got.ExecutionContext["start"]["topic"])
		require.Equal(t, "shoes", got.InputConfig["topic"])

		outs, err := store.ListNodeOutputs(ctx, "exec-1")
		require.NoError(t, err)
		require.Len(t, outs, 2)
		require.Equal(t, "start", outs[0].NodeId)
		require.Equal(t, "Buy shoes", outs[1].Outputs["content"])
	})

	t.Run("run lease round trip", func(t *testing.T) {
		until := time.Now().Add(time.Minute).UTC().Truncate(time.Microsecond)
		_, err := store.UpdateExecution(ctx, "exec-1", func(e *model.WorkflowExecution) error {
			e.RunOwner = "runner-a"
			e.RunLeaseUntil = &until
			return nil
		})
		require.NoError(t, err)
		got, err := store.GetExecution(ctx, "exec-1")
		require.NoError(t, err)
		require.Equal(t, "runner-a", got.RunOwner)
		require.NotNil(t, got.RunLeaseUntil)
		require.True(t, until.Equal(*got.RunLeaseUntil))

		_, err = store.UpdateExecution(ctx, "exec-1", func(e *model.WorkflowExecution) error {
			e.Release("runner-a")
			return nil
		})
		require.NoError(t, err)
		got, err = store.GetExecution(ctx, "exec-1")
		require.NoError(t, err)
		require.Empty(t, got.RunOwner)
		require.Nil(t, got.RunLeaseUntil)
	})

	t.Run("job lifecycle", func(t *testing.T) {
		job := &model.AgentJob{Id: "job-1", ExecutionId: "exec-1", NodeId: "copy",
			NodeType: model.NODE_TYPE_TEXT_GENERATION, Status: model.JOB_PENDING, CreatedAt: time.Now()}
		require.NoError(t, store.CreateJob(ctx, job))
		now := time.Now()
		job.Status = model.JOB_COMPLETED
		job.CompletedAt = &now
		job.Output = map[string]any{"content": "done"}
		require.NoError(t, store.UpdateJob(ctx, job))

		jobs, err := store.ListJobs(ctx, "exec-1")
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		require.Equal(t, model.JOB_COMPLETED, jobs[0].Status)
		require.Equal(t, "done", jobs[0].Output["content"])
		require.Error(t, store.UpdateJob(ctx, &model.AgentJob{Id: "ghost", ExecutionId: "exec-1"}))
	})
}
