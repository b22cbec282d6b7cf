package memory

import (
	"context"
	"sync"
	"time"

	c "github.com/patrickmn/go-cache"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
)

const stateKeyPrefix = "state:"
const outputsKeyPrefix = "outputs:"

var _ persistence.StateStore = new(StateStore)

// StateStore is an in-process fast tier. Entries expire with their TTL
// exactly like the redis tier.
type StateStore struct {
	cache *c.Cache
	mu    sync.Mutex
}

func NewStateStore() *StateStore {
	return &StateStore{
		cache: c.New(c.NoExpiration, time.Minute),
	}
}

// SaveState also pushes out the expiry of the execution's node outputs, so
// the two entries age together.
func (s *StateStore) SaveState(_ context.Context, executionId string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(stateKeyPrefix+executionId, append([]byte(nil), data...), ttl)
	if v, found := s.cache.Get(outputsKeyPrefix + executionId); found {
		s.cache.Set(outputsKeyPrefix+executionId, v, ttl)
	}
	return nil
}

func (s *StateStore) LoadState(_ context.Context, executionId string) ([]byte, error) {
	v, found := s.cache.Get(stateKeyPrefix + executionId)
	if !found {
		return nil, nil
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (s *StateStore) SaveNodeOutput(_ context.Context, executionId string, nodeId string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := outputsKeyPrefix + executionId
	outputs := make(map[string][]byte)
	if v, found := s.cache.Get(key); found {
		for k, d := range v.(map[string][]byte) {
			outputs[k] = d
		}
	}
	outputs[nodeId] = append([]byte(nil), data...)
	s.cache.Set(key, outputs, ttl)
	return nil
}

func (s *StateStore) GetNodeOutputs(_ context.Context, executionId string) (map[string][]byte, error) {
	v, found := s.cache.Get(outputsKeyPrefix + executionId)
	if !found {
		return map[string][]byte{}, nil
	}
	stored := v.(map[string][]byte)
	out := make(map[string][]byte, len(stored))
	for k, d := range stored {
		out[k] = d
	}
	return out, nil
}

func (s *StateStore) DeleteState(_ context.Context, executionId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(stateKeyPrefix + executionId)
	s.cache.Delete(outputsKeyPrefix + executionId)
	return nil
}
