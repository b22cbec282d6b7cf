package metadata

import (
	"github.com/google/uuid"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"go.uber.org/zap"
)

type Service interface {
	SaveTemplate(t model.WorkflowTemplate) (*model.WorkflowTemplate, ValidationResult, error)
	GetTemplate(id string) (*model.WorkflowTemplate, error)
	ListTemplates() ([]*model.WorkflowTemplate, error)
	DeleteTemplate(id string) error
	Validate(t *model.WorkflowTemplate) ValidationResult
}

type ServiceImpl struct {
	storage   Storage
	validator *Validator
}

var _ Service = new(ServiceImpl)

func NewService(storage Storage) *ServiceImpl {
	return &ServiceImpl{
		storage:   storage,
		validator: NewValidator(),
	}
}

// SaveTemplate stores a validated template. Templates are immutable per
// version: saving an existing id stores the next version.
func (s *ServiceImpl) SaveTemplate(t model.WorkflowTemplate) (*model.WorkflowTemplate, ValidationResult, error) {
	res := s.validator.Validate(&t)
	if !res.Valid {
		return nil, res, res.Err()
	}
	if t.Id == "" {
		t.Id = uuid.New().String()
	}
	if existing, err := s.storage.GetTemplate(t.Id); err == nil && existing != nil {
		t.Version = existing.Version + 1
	} else if t.Version == 0 {
		t.Version = 1
	}
	if err := s.storage.SaveTemplate(t); err != nil {
		logger.Error("error saving workflow template", zap.String("templateId", t.Id), zap.Error(err))
		return nil, res, err
	}
	logger.Info("workflow template saved", zap.String("templateId", t.Id), zap.Int("version", t.Version),
		zap.Int("warnings", len(res.Warnings)))
	return &t, res, nil
}

func (s *ServiceImpl) GetTemplate(id string) (*model.WorkflowTemplate, error) {
	return s.storage.GetTemplate(id)
}

func (s *ServiceImpl) ListTemplates() ([]*model.WorkflowTemplate, error) {
	return s.storage.ListTemplates()
}

func (s *ServiceImpl) DeleteTemplate(id string) error {
	return s.storage.DeleteTemplate(id)
}

func (s *ServiceImpl) Validate(t *model.WorkflowTemplate) ValidationResult {
	return s.validator.Validate(t)
}
