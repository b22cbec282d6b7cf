package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"go.uber.org/zap"
)

var _ persistence.ExecutionStore = new(ExecutionStore)

// ExecutionStore is the durable tier backed by PostgreSQL.
type ExecutionStore struct {
	db *pgxpool.Pool
}

func NewExecutionStore(db *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{db: db}
}

const executionColumns = `id, template_id, template_version, project_id, workspace_id, user_id, status,
	progress_percent, current_node_id, execution_context, input_config, input_tokens, output_tokens,
	error_message, created_at, started_at, completed_at, run_owner, run_lease_until`

func (s *ExecutionStore) CreateExecution(ctx context.Context, exec *model.WorkflowExecution) error {
	execCtx, inputs, err := encodeExecution(exec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO workflow_executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		exec.Id, exec.TemplateId, exec.TemplateVersion, exec.ProjectId, exec.WorkspaceId, exec.UserId,
		string(exec.Status), exec.ProgressPercent, exec.CurrentNodeId, execCtx, inputs,
		exec.Usage.InputTokens, exec.Usage.OutputTokens, exec.ErrorMessage, exec.CreatedAt,
		exec.StartedAt, exec.CompletedAt, exec.RunOwner, exec.RunLeaseUntil)
	if err != nil {
		return storageError("error creating execution", exec.Id, err)
	}
	return nil
}

func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (*model.WorkflowExecution, error) {
	row := s.db.QueryRow(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)
	return scanExecution(row, id)
}

// UpdateExecution locks the row, applies fn and appends outputs in a single
// transaction. Any failure rolls the whole unit back.
func (s *ExecutionStore) UpdateExecution(ctx context.Context, id string, fn func(exec *model.WorkflowExecution) error, outputs ...*model.NodeOutput) (*model.WorkflowExecution, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storageError("error starting transaction", id, err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1 FOR UPDATE`, id)
	exec, err := scanExecution(row, id)
	if err != nil {
		return nil, err
	}
	if fn != nil {
		if err := fn(exec); err != nil {
			return nil, err
		}
	}
	execCtx, inputs, err := encodeExecution(exec)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `UPDATE workflow_executions SET status = $1, progress_percent = $2,
		current_node_id = $3, execution_context = $4, input_config = $5, input_tokens = $6,
		output_tokens = $7, error_message = $8, started_at = $9, completed_at = $10, run_owner = $11,
		run_lease_until = $12 WHERE id = $13`,
		string(exec.Status), exec.ProgressPercent, exec.CurrentNodeId, execCtx, inputs,
		exec.Usage.InputTokens, exec.Usage.OutputTokens, exec.ErrorMessage, exec.StartedAt,
		exec.CompletedAt, exec.RunOwner, exec.RunLeaseUntil, id)
	if err != nil {
		return nil, storageError("error updating execution", id, err)
	}
	for _, out := range outputs {
		data, err := json.Marshal(out.Outputs)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx, `INSERT INTO node_outputs (id, execution_id, node_id, node_type, name,
			execution_order, iteration, outputs, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			out.Id, id, out.NodeId, string(out.NodeType), out.Name, out.ExecutionOrder, out.Iteration,
			data, out.CreatedAt)
		if err != nil {
			return nil, storageError("error appending node output", id, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("error committing execution update", id, err)
	}
	return exec, nil
}

func (s *ExecutionStore) ListNodeOutputs(ctx context.Context, executionId string) ([]*model.NodeOutput, error) {
	rows, err := s.db.Query(ctx, `SELECT id, execution_id, node_id, node_type, name, execution_order,
		iteration, outputs, created_at FROM node_outputs WHERE execution_id = $1
		ORDER BY execution_order, created_at`, executionId)
	if err != nil {
		return nil, storageError("error listing node outputs", executionId, err)
	}
	defer rows.Close()

	var outputs []*model.NodeOutput
	for rows.Next() {
		var out model.NodeOutput
		var nodeType string
		var data []byte
		if err := rows.Scan(&out.Id, &out.ExecutionId, &out.NodeId, &nodeType, &out.Name,
			&out.ExecutionOrder, &out.Iteration, &data, &out.CreatedAt); err != nil {
			return nil, storageError("error scanning node output", executionId, err)
		}
		out.NodeType = model.NodeType(nodeType)
		if err := json.Unmarshal(data, &out.Outputs); err != nil {
			return nil, err
		}
		outputs = append(outputs, &out)
	}
	return outputs, rows.Err()
}

func (s *ExecutionStore) CreateJob(ctx context.Context, job *model.AgentJob) error {
	output, err := nullableJSON(job.Output)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO agent_jobs (id, execution_id, node_id, node_type, execution_order,
		iteration, status, output, error, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.Id, job.ExecutionId, job.NodeId, string(job.NodeType), job.ExecutionOrder, job.Iteration,
		string(job.Status), output, job.Error, job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return storageError("error creating job", job.ExecutionId, err)
	}
	return nil
}

func (s *ExecutionStore) UpdateJob(ctx context.Context, job *model.AgentJob) error {
	output, err := nullableJSON(job.Output)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `UPDATE agent_jobs SET status = $1, output = $2, error = $3,
		started_at = $4, completed_at = $5 WHERE id = $6`,
		string(job.Status), output, job.Error, job.StartedAt, job.CompletedAt, job.Id)
	if err != nil {
		return storageError("error updating job", job.ExecutionId, err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.NotFoundError{Kind: persistence.KIND_JOB, Id: job.Id}
	}
	return nil
}

func (s *ExecutionStore) ListJobs(ctx context.Context, executionId string) ([]*model.AgentJob, error) {
	rows, err := s.db.Query(ctx, `SELECT id, execution_id, node_id, node_type, execution_order, iteration,
		status, output, error, created_at, started_at, completed_at FROM agent_jobs
		WHERE execution_id = $1 ORDER BY created_at, id`, executionId)
	if err != nil {
		return nil, storageError("error listing jobs", executionId, err)
	}
	defer rows.Close()

	var jobs []*model.AgentJob
	for rows.Next() {
		var job model.AgentJob
		var nodeType, status string
		var output []byte
		if err := rows.Scan(&job.Id, &job.ExecutionId, &job.NodeId, &nodeType, &job.ExecutionOrder,
			&job.Iteration, &status, &output, &job.Error, &job.CreatedAt, &job.StartedAt,
			&job.CompletedAt); err != nil {
			return nil, storageError("error scanning job", executionId, err)
		}
		job.NodeType = model.NodeType(nodeType)
		job.Status = model.JobStatus(status)
		if len(output) > 0 {
			if err := json.Unmarshal(output, &job.Output); err != nil {
				return nil, err
			}
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func scanExecution(row pgx.Row, id string) (*model.WorkflowExecution, error) {
	var exec model.WorkflowExecution
	var status string
	var execCtx, inputs []byte
	var startedAt, completedAt, leaseUntil *time.Time
	err := row.Scan(&exec.Id, &exec.TemplateId, &exec.TemplateVersion, &exec.ProjectId, &exec.WorkspaceId,
		&exec.UserId, &status, &exec.ProgressPercent, &exec.CurrentNodeId, &execCtx, &inputs,
		&exec.Usage.InputTokens, &exec.Usage.OutputTokens, &exec.ErrorMessage, &exec.CreatedAt,
		&startedAt, &completedAt, &exec.RunOwner, &leaseUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, persistence.NotFoundError{Kind: persistence.KIND_EXECUTION, Id: id}
		}
		return nil, storageError("error reading execution", id, err)
	}
	exec.Status = model.ExecutionStatus(status)
	exec.StartedAt = startedAt
	exec.CompletedAt = completedAt
	exec.RunLeaseUntil = leaseUntil
	exec.ExecutionContext = model.ExecutionContext{}
	if err := json.Unmarshal(execCtx, &exec.ExecutionContext); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(inputs, &exec.InputConfig); err != nil {
		return nil, err
	}
	return &exec, nil
}

func encodeExecution(exec *model.WorkflowExecution) ([]byte, []byte, error) {
	execCtx := exec.ExecutionContext
	if execCtx == nil {
		execCtx = model.ExecutionContext{}
	}
	ctxData, err := json.Marshal(execCtx)
	if err != nil {
		return nil, nil, err
	}
	inputs := exec.InputConfig
	if inputs == nil {
		inputs = map[string]any{}
	}
	inputData, err := json.Marshal(inputs)
	if err != nil {
		return nil, nil, err
	}
	return ctxData, inputData, nil
}

func nullableJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func storageError(msg string, executionId string, err error) error {
	logger.Error(msg, zap.String("executionId", executionId), zap.Error(err))
	return persistence.StorageLayerError{Message: err.Error(), Err: err}
}
