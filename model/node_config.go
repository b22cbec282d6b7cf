package model

import (
	"encoding/json"
	"fmt"
)

type NodeConfig interface {
	NodeType() NodeType
	MissingFields() []string
}

var (
	_ NodeConfig = new(StartConfig)
	_ NodeConfig = new(TextGenerationConfig)
	_ NodeConfig = new(ImageGenerationConfig)
	_ NodeConfig = new(AttachConfig)
	_ NodeConfig = new(ReviewConfig)
	_ NodeConfig = new(ConditionalConfig)
	_ NodeConfig = new(LoopConfig)
	_ NodeConfig = new(ContextRetrievalConfig)
	_ NodeConfig = new(FinishConfig)
	_ NodeConfig = new(UnknownConfig)
)

// DecodeConfig builds the config variant for the node type. Unknown types
// keep their raw values in an UnknownConfig so validation can report them.
func DecodeConfig(t NodeType, data []byte) (NodeConfig, error) {
	var cfg NodeConfig
	switch t {
	case NODE_TYPE_START:
		cfg = &StartConfig{}
	case NODE_TYPE_TEXT_GENERATION, NODE_TYPE_GENERATE_COPY:
		cfg = &TextGenerationConfig{Kind: t}
	case NODE_TYPE_IMAGE_GENERATION:
		cfg = &ImageGenerationConfig{}
	case NODE_TYPE_ATTACH:
		cfg = &AttachConfig{}
	case NODE_TYPE_REVIEW:
		cfg = &ReviewConfig{}
	case NODE_TYPE_CONDITIONAL:
		cfg = &ConditionalConfig{}
	case NODE_TYPE_LOOP:
		cfg = &LoopConfig{}
	case NODE_TYPE_CONTEXT_RETRIEVAL:
		cfg = &ContextRetrievalConfig{}
	case NODE_TYPE_FINISH:
		cfg = &FinishConfig{}
	default:
		cfg = &UnknownConfig{Type: t}
	}
	if len(data) == 0 || string(data) == "null" {
		return cfg, nil
	}
	if u, ok := cfg.(*UnknownConfig); ok {
		if err := json.Unmarshal(data, &u.Values); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return u, nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", t, err)
	}
	return cfg, nil
}

type StartConfig struct {
	Variables map[string]any `json:"variables,omitempty"`
}

func (c *StartConfig) NodeType() NodeType      { return NODE_TYPE_START }
func (c *StartConfig) MissingFields() []string { return nil }

const OUTPUT_FORMAT_TEXT = "text"
const OUTPUT_FORMAT_JSON = "json"
const OUTPUT_FORMAT_MARKDOWN = "markdown"

type TextGenerationConfig struct {
	Kind           NodeType `json:"-"`
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	SystemPrompt   string   `json:"system_prompt,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	OutputFormat   string   `json:"output_format,omitempty"`
	Title          string   `json:"title,omitempty"`
	SaveAsDocument *bool    `json:"save_as_document,omitempty"`
}

func (c *TextGenerationConfig) NodeType() NodeType {
	if c.Kind == "" {
		return NODE_TYPE_TEXT_GENERATION
	}
	return c.Kind
}

func (c *TextGenerationConfig) MissingFields() []string {
	var missing []string
	if c.Prompt == "" {
		missing = append(missing, "prompt")
	}
	if c.Model == "" {
		missing = append(missing, "model")
	}
	return missing
}

// ShouldPersist defaults to true; intermediate steps opt out.
func (c *TextGenerationConfig) ShouldPersist() bool {
	return c.SaveAsDocument == nil || *c.SaveAsDocument
}

func (c *TextGenerationConfig) TemperatureOrDefault() float64 {
	if c.Temperature == nil {
		return 0.7
	}
	return *c.Temperature
}

type ImageGenerationConfig struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Quality     string `json:"quality,omitempty"`
	Title       string `json:"title,omitempty"`
}

func (c *ImageGenerationConfig) NodeType() NodeType { return NODE_TYPE_IMAGE_GENERATION }

func (c *ImageGenerationConfig) MissingFields() []string {
	if c.Prompt == "" {
		return []string{"prompt"}
	}
	return nil
}

const SOURCE_NODE = "node"
const SOURCE_ASSET = "asset"

type AttachConfig struct {
	DocumentSource string `json:"document_source"`
	DocumentNode   string `json:"document_node,omitempty"`
	DocumentId     string `json:"document_id,omitempty"`
	ImageSource    string `json:"image_source"`
	ImageNode      string `json:"image_node,omitempty"`
	ImageId        string `json:"image_id,omitempty"`
}

func (c *AttachConfig) NodeType() NodeType { return NODE_TYPE_ATTACH }

func (c *AttachConfig) MissingFields() []string {
	var missing []string
	missing = append(missing, sourceMissing("document", c.DocumentSource, c.DocumentNode, c.DocumentId)...)
	missing = append(missing, sourceMissing("image", c.ImageSource, c.ImageNode, c.ImageId)...)
	return missing
}

func sourceMissing(side, source, node, id string) []string {
	switch source {
	case SOURCE_NODE:
		if node == "" {
			return []string{side + "_node"}
		}
	case SOURCE_ASSET:
		if id == "" {
			return []string{side + "_id"}
		}
	default:
		return []string{side + "_source"}
	}
	return nil
}

type ReviewConfig struct {
	Instructions string `json:"instructions,omitempty"`
	Reviewer     string `json:"reviewer,omitempty"`
}

func (c *ReviewConfig) NodeType() NodeType      { return NODE_TYPE_REVIEW }
func (c *ReviewConfig) MissingFields() []string { return nil }

type Condition struct {
	Left     any    `json:"left"`
	Operator string `json:"operator"`
	Right    any    `json:"right"`
}

const LOGIC_AND = "AND"
const LOGIC_OR = "OR"

type ConditionalConfig struct {
	Condition  *Condition  `json:"condition,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
	Logic      string      `json:"logic,omitempty"`
	// Expression is a JavaScript boolean expression with the execution context bound to $.
	Expression string `json:"expression,omitempty"`
}

func (c *ConditionalConfig) NodeType() NodeType { return NODE_TYPE_CONDITIONAL }

func (c *ConditionalConfig) MissingFields() []string {
	if c.Condition == nil && len(c.Conditions) == 0 && c.Expression == "" {
		return []string{"condition"}
	}
	return nil
}

const LOOP_STRATEGY_FIXED = "fixed"
const LOOP_STRATEGY_CONDITIONAL = "conditional"
const LOOP_STRATEGY_COLLECTION = "collection"

type LoopConfig struct {
	Strategy        string     `json:"strategy,omitempty"`
	Iterations      int        `json:"iterations,omitempty"`
	MaxIterations   int        `json:"max_iterations,omitempty"`
	Condition       *Condition `json:"condition,omitempty"`
	Collection      string     `json:"collection,omitempty"`
	Body            []string   `json:"body,omitempty"`
	ContinueOnError bool       `json:"continue_on_error,omitempty"`
}

func (c *LoopConfig) NodeType() NodeType { return NODE_TYPE_LOOP }

// EffectiveStrategy infers the strategy from the populated fields when none is set.
func (c *LoopConfig) EffectiveStrategy() string {
	if c.Strategy != "" {
		return c.Strategy
	}
	switch {
	case c.Collection != "":
		return LOOP_STRATEGY_COLLECTION
	case c.Condition != nil:
		return LOOP_STRATEGY_CONDITIONAL
	}
	return LOOP_STRATEGY_FIXED
}

func (c *LoopConfig) MissingFields() []string {
	switch c.EffectiveStrategy() {
	case LOOP_STRATEGY_FIXED:
		if c.Iterations <= 0 {
			return []string{"iterations"}
		}
	case LOOP_STRATEGY_CONDITIONAL:
		if c.Condition == nil {
			return []string{"condition"}
		}
	case LOOP_STRATEGY_COLLECTION:
		if c.Collection == "" {
			return []string{"collection"}
		}
	default:
		return []string{"strategy"}
	}
	return nil
}

type ContextRetrievalConfig struct {
	Query      string   `json:"query"`
	ProjectId  string   `json:"project_id,omitempty"`
	FolderIds  []string `json:"folder_ids,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

func (c *ContextRetrievalConfig) NodeType() NodeType { return NODE_TYPE_CONTEXT_RETRIEVAL }

func (c *ContextRetrievalConfig) MissingFields() []string {
	if c.Query == "" {
		return []string{"query"}
	}
	return nil
}

type FinishConfig struct {
	Title         string   `json:"title,omitempty"`
	DocumentNodes []string `json:"document_nodes,omitempty"`
	Status        string   `json:"status,omitempty"`
	Notify        bool     `json:"notify,omitempty"`
}

func (c *FinishConfig) NodeType() NodeType      { return NODE_TYPE_FINISH }
func (c *FinishConfig) MissingFields() []string { return nil }

type UnknownConfig struct {
	Type   NodeType
	Values map[string]any
}

func (c *UnknownConfig) NodeType() NodeType      { return c.Type }
func (c *UnknownConfig) MissingFields() []string { return nil }

func (c *UnknownConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Values)
}
