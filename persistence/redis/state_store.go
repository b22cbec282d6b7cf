package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"go.uber.org/zap"
)

const STATE_KEY string = "STATE"
const OUTPUTS_KEY string = "OUTPUTS"

var _ persistence.StateStore = new(redisStateStore)

// redisStateStore keeps the state as a plain key with TTL and node outputs
// as a hash whose expiry is refreshed to the same TTL on every write.
type redisStateStore struct {
	*baseDao
}

func NewRedisStateStore(conf Config) *redisStateStore {
	return &redisStateStore{baseDao: newBaseDao(conf)}
}

func NewRedisStateStoreWithClient(client rd.UniversalClient, namespace string) *redisStateStore {
	return &redisStateStore{baseDao: newBaseDaoWithClient(client, namespace)}
}

func (r *redisStateStore) SaveState(ctx context.Context, executionId string, data []byte, ttl time.Duration) error {
	key := r.getNamespaceKey(STATE_KEY, executionId)
	outputsKey := r.getNamespaceKey(OUTPUTS_KEY, executionId)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.Expire(ctx, outputsKey, ttl)
		return nil
	})
	if err != nil {
		logger.Error("error saving execution state", zap.String("executionId", executionId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error(), Err: err}
	}
	return nil
}

func (r *redisStateStore) LoadState(ctx context.Context, executionId string) ([]byte, error) {
	data, err := r.redisClient.Get(ctx, r.getNamespaceKey(STATE_KEY, executionId)).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		logger.Error("error loading execution state", zap.String("executionId", executionId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error(), Err: err}
	}
	return data, nil
}

func (r *redisStateStore) SaveNodeOutput(ctx context.Context, executionId string, nodeId string, data []byte, ttl time.Duration) error {
	key := r.getNamespaceKey(OUTPUTS_KEY, executionId)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, key, nodeId, data)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		logger.Error("error saving node output", zap.String("executionId", executionId), zap.String("nodeId", nodeId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error(), Err: err}
	}
	return nil
}

func (r *redisStateStore) GetNodeOutputs(ctx context.Context, executionId string) (map[string][]byte, error) {
	values, err := r.redisClient.HGetAll(ctx, r.getNamespaceKey(OUTPUTS_KEY, executionId)).Result()
	if err != nil {
		logger.Error("error reading node outputs", zap.String("executionId", executionId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error(), Err: err}
	}
	out := make(map[string][]byte, len(values))
	for k, v := range values {
		out[k] = []byte(v)
	}
	return out, nil
}

func (r *redisStateStore) DeleteState(ctx context.Context, executionId string) error {
	err := r.redisClient.Del(ctx,
		r.getNamespaceKey(STATE_KEY, executionId),
		r.getNamespaceKey(OUTPUTS_KEY, executionId)).Err()
	if err != nil {
		logger.Error("error deleting execution state", zap.String("executionId", executionId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error(), Err: err}
	}
	return nil
}
