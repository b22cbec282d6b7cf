package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/util"
)

var _ persistence.ExecutionStore = new(ExecutionStore)

// ExecutionStore keeps durable rows in memory. Values are copied through the
// JSON codec on the way in and out so callers never share maps with the store.
type ExecutionStore struct {
	mu         sync.Mutex
	executions map[string][]byte
	outputs    map[string][]*model.NodeOutput
	jobs       map[string][]*model.AgentJob
	execCodec  util.EncoderDecoder[model.WorkflowExecution]
	outCodec   util.EncoderDecoder[model.NodeOutput]
	jobCodec   util.EncoderDecoder[model.AgentJob]
}

func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		executions: make(map[string][]byte),
		outputs:    make(map[string][]*model.NodeOutput),
		jobs:       make(map[string][]*model.AgentJob),
		execCodec:  util.NewJsonEncoderDecoder[model.WorkflowExecution](),
		outCodec:   util.NewJsonEncoderDecoder[model.NodeOutput](),
		jobCodec:   util.NewJsonEncoderDecoder[model.AgentJob](),
	}
}

func (s *ExecutionStore) CreateExecution(_ context.Context, exec *model.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[exec.Id]; ok {
		return persistence.StorageLayerError{Message: "execution " + exec.Id + " already exists"}
	}
	data, err := s.execCodec.Encode(*exec)
	if err != nil {
		return err
	}
	s.executions[exec.Id] = data
	return nil
}

func (s *ExecutionStore) GetExecution(_ context.Context, id string) (*model.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *ExecutionStore) get(id string) (*model.WorkflowExecution, error) {
	data, ok := s.executions[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: persistence.KIND_EXECUTION, Id: id}
	}
	return s.execCodec.Decode(data)
}

func (s *ExecutionStore) UpdateExecution(_ context.Context, id string, fn func(exec *model.WorkflowExecution) error, outputs ...*model.NodeOutput) (*model.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if fn != nil {
		if err := fn(exec); err != nil {
			return nil, err
		}
	}
	data, err := s.execCodec.Encode(*exec)
	if err != nil {
		return nil, err
	}
	copies := make([]*model.NodeOutput, 0, len(outputs))
	for _, out := range outputs {
		cp, err := copyVia(s.outCodec, *out)
		if err != nil {
			return nil, err
		}
		copies = append(copies, cp)
	}
	s.executions[id] = data
	s.outputs[id] = append(s.outputs[id], copies...)
	return s.execCodec.Decode(data)
}

func (s *ExecutionStore) ListNodeOutputs(_ context.Context, executionId string) ([]*model.NodeOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.NodeOutput, 0, len(s.outputs[executionId]))
	for _, o := range s.outputs[executionId] {
		cp, err := copyVia(s.outCodec, *o)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutionOrder < out[j].ExecutionOrder
	})
	return out, nil
}

func (s *ExecutionStore) CreateJob(_ context.Context, job *model.AgentJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, err := copyVia(s.jobCodec, *job)
	if err != nil {
		return err
	}
	s.jobs[job.ExecutionId] = append(s.jobs[job.ExecutionId], cp)
	return nil
}

func (s *ExecutionStore) UpdateJob(_ context.Context, job *model.AgentJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.jobs[job.ExecutionId] {
		if j.Id == job.Id {
			cp, err := copyVia(s.jobCodec, *job)
			if err != nil {
				return err
			}
			s.jobs[job.ExecutionId][i] = cp
			return nil
		}
	}
	return persistence.NotFoundError{Kind: persistence.KIND_JOB, Id: job.Id}
}

func (s *ExecutionStore) ListJobs(_ context.Context, executionId string) ([]*model.AgentJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.AgentJob, 0, len(s.jobs[executionId]))
	for _, j := range s.jobs[executionId] {
		cp, err := copyVia(s.jobCodec, *j)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func copyVia[T any](codec util.EncoderDecoder[T], v T) (*T, error) {
	data, err := codec.Encode(v)
	if err != nil {
		return nil, err
	}
	return codec.Decode(data)
}
