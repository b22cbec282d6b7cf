package memory

import (
	"sort"
	"sync"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metadata"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/util"
)

var _ metadata.Storage = new(TemplateStorage)

type TemplateStorage struct {
	mu        sync.RWMutex
	templates map[string][]byte
	codec     util.EncoderDecoder[model.WorkflowTemplate]
}

func NewTemplateStorage() *TemplateStorage {
	return &TemplateStorage{
		templates: make(map[string][]byte),
		codec:     util.NewJsonEncoderDecoder[model.WorkflowTemplate](),
	}
}

func (s *TemplateStorage) SaveTemplate(t model.WorkflowTemplate) error {
	data, err := s.codec.Encode(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Id] = data
	return nil
}

func (s *TemplateStorage) DeleteTemplate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, id)
	return nil
}

func (s *TemplateStorage) GetTemplate(id string) (*model.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.templates[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: persistence.KIND_TEMPLATE, Id: id}
	}
	return s.codec.Decode(data)
}

func (s *TemplateStorage) ListTemplates() ([]*model.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.WorkflowTemplate, 0, len(s.templates))
	for _, id := range util.SortedKeys(s.templates) {
		t, err := s.codec.Decode(s.templates[id])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
