package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

type StorageLayerError struct {
	Message string
	Err     error
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

func (e StorageLayerError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}

const KIND_EXECUTION = "execution"
const KIND_TEMPLATE = "template"
const KIND_JOB = "job"

// StateStore is the fast tier: per-execution state and node outputs that
// expire together. Missing or expired entries read as nil without error.
type StateStore interface {
	SaveState(ctx context.Context, executionId string, data []byte, ttl time.Duration) error
	LoadState(ctx context.Context, executionId string) ([]byte, error)
	SaveNodeOutput(ctx context.Context, executionId string, nodeId string, data []byte, ttl time.Duration) error
	GetNodeOutputs(ctx context.Context, executionId string) (map[string][]byte, error)
	DeleteState(ctx context.Context, executionId string) error
}

// ExecutionStore is the durable tier.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *model.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*model.WorkflowExecution, error)
	// UpdateExecution applies fn to the current row and appends outputs in
	// one atomic unit. When fn fails nothing is written.
	UpdateExecution(ctx context.Context, id string, fn func(exec *model.WorkflowExecution) error, outputs ...*model.NodeOutput) (*model.WorkflowExecution, error)
	ListNodeOutputs(ctx context.Context, executionId string) ([]*model.NodeOutput, error)
	CreateJob(ctx context.Context, job *model.AgentJob) error
	UpdateJob(ctx context.Context, job *model.AgentJob) error
	ListJobs(ctx context.Context, executionId string) ([]*model.AgentJob, error)
}
