package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"gopkg.in/yaml.v3"
)

// DecodeTemplate reads a template written in YAML or JSON. The document is
// normalised to JSON so node configs decode through the same tagged union.
func DecodeTemplate(data []byte) (*model.WorkflowTemplate, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid template document: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid template document: %w", err)
	}
	var t model.WorkflowTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
