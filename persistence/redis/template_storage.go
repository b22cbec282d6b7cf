package redis

import (
	"context"
	"errors"
	"sort"

	rd "github.com/go-redis/redis/v9"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metadata"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/util"
	"go.uber.org/zap"
)

const TEMPLATE_KEY string = "TEMPLATES"

var _ metadata.Storage = new(redisTemplateStorage)

type redisTemplateStorage struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.WorkflowTemplate]
}

func NewRedisTemplateStorage(conf Config, encoderDecoder util.EncoderDecoder[model.WorkflowTemplate]) *redisTemplateStorage {
	return &redisTemplateStorage{
		baseDao:        newBaseDao(conf),
		encoderDecoder: encoderDecoder,
	}
}

func (r *redisTemplateStorage) SaveTemplate(t model.WorkflowTemplate) error {
	data, err := r.encoderDecoder.Encode(t)
	if err != nil {
		return err
	}
	key := r.getNamespaceKey(TEMPLATE_KEY)
	if err := r.redisClient.HSet(context.Background(), key, t.Id, data).Err(); err != nil {
		logger.Error("error saving template", zap.String("templateId", t.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error(), Err: err}
	}
	return nil
}

func (r *redisTemplateStorage) DeleteTemplate(id string) error {
	if err := r.redisClient.HDel(context.Background(), r.getNamespaceKey(TEMPLATE_KEY), id).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error(), Err: err}
	}
	return nil
}

func (r *redisTemplateStorage) GetTemplate(id string) (*model.WorkflowTemplate, error) {
	data, err := r.redisClient.HGet(context.Background(), r.getNamespaceKey(TEMPLATE_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: persistence.KIND_TEMPLATE, Id: id}
		}
		logger.Error("error reading template", zap.String("templateId", id), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error(), Err: err}
	}
	return r.encoderDecoder.Decode([]byte(data))
}

func (r *redisTemplateStorage) ListTemplates() ([]*model.WorkflowTemplate, error) {
	values, err := r.redisClient.HGetAll(context.Background(), r.getNamespaceKey(TEMPLATE_KEY)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error(), Err: err}
	}
	out := make([]*model.WorkflowTemplate, 0, len(values))
	for _, id := range util.SortedKeys(values) {
		t, err := r.encoderDecoder.Decode([]byte(values[id]))
		if err != nil {
			logger.Error("skipping undecodable template", zap.String("templateId", id), zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
