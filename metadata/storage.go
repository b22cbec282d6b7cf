package metadata

import "github.com/yanffernandes/xtyl-creativity-machine-sub000/model"

type Storage interface {
	SaveTemplate(t model.WorkflowTemplate) error
	DeleteTemplate(id string) error
	GetTemplate(id string) (*model.WorkflowTemplate, error)
	ListTemplates() ([]*model.WorkflowTemplate, error)
}
