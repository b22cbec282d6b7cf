package model

import (
	"encoding/json"
	"fmt"
)

type NodeType string

const NODE_TYPE_START NodeType = "start"
const NODE_TYPE_TEXT_GENERATION NodeType = "text_generation"
const NODE_TYPE_GENERATE_COPY NodeType = "generate_copy"
const NODE_TYPE_IMAGE_GENERATION NodeType = "image_generation"
const NODE_TYPE_ATTACH NodeType = "attach"
const NODE_TYPE_REVIEW NodeType = "review"
const NODE_TYPE_CONDITIONAL NodeType = "conditional"
const NODE_TYPE_LOOP NodeType = "loop"
const NODE_TYPE_CONTEXT_RETRIEVAL NodeType = "context_retrieval"
const NODE_TYPE_FINISH NodeType = "finish"

var NODE_TYPES = []NodeType{
	NODE_TYPE_START,
	NODE_TYPE_TEXT_GENERATION,
	NODE_TYPE_GENERATE_COPY,
	NODE_TYPE_IMAGE_GENERATION,
	NODE_TYPE_ATTACH,
	NODE_TYPE_REVIEW,
	NODE_TYPE_CONDITIONAL,
	NODE_TYPE_LOOP,
	NODE_TYPE_CONTEXT_RETRIEVAL,
	NODE_TYPE_FINISH,
}

func (t NodeType) IsKnown() bool {
	for _, nt := range NODE_TYPES {
		if nt == t {
			return true
		}
	}
	return false
}

// DeferredKeys are config keys left unresolved before dispatch; the node's
// executor resolves them itself so values keep their types.
func (t NodeType) DeferredKeys() []string {
	switch t {
	case NODE_TYPE_CONDITIONAL:
		return []string{"condition", "conditions", "expression"}
	case NODE_TYPE_LOOP:
		return []string{"condition", "collection"}
	}
	return nil
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Node struct {
	Id       string     `json:"id"`
	Type     NodeType   `json:"type"`
	Name     string     `json:"name,omitempty"`
	Position Position   `json:"position"`
	Config   NodeConfig `json:"config"`
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		Id       string          `json:"id"`
		Type     NodeType        `json:"type"`
		Name     string          `json:"name"`
		Position Position        `json:"position"`
		Config   json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := DecodeConfig(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.Id, err)
	}
	n.Id = raw.Id
	n.Type = raw.Type
	n.Name = raw.Name
	n.Position = raw.Position
	n.Config = cfg
	return nil
}

func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.Id
}

type Edge struct {
	Id     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
	// Branch is set on edges leaving a conditional node: "true" or "false".
	Branch string `json:"branch,omitempty"`
}

type WorkflowTemplate struct {
	Id            string         `json:"id"`
	Name          string         `json:"name"`
	Version       int            `json:"version"`
	WorkspaceId   string         `json:"workspace_id,omitempty"`
	IsSystem      bool           `json:"is_system"`
	Nodes         []Node         `json:"nodes"`
	Edges         []Edge         `json:"edges"`
	DefaultParams map[string]any `json:"default_params,omitempty"`
}

func (t *WorkflowTemplate) Node(id string) (Node, bool) {
	for _, n := range t.Nodes {
		if n.Id == id {
			return n, true
		}
	}
	return Node{}, false
}

// LoopBodies maps every node that runs inside a loop to its loop node id.
func (t *WorkflowTemplate) LoopBodies() map[string]string {
	owners := make(map[string]string)
	for _, n := range t.Nodes {
		cfg, ok := n.Config.(*LoopConfig)
		if !ok {
			continue
		}
		for _, b := range cfg.Body {
			owners[b] = n.Id
		}
	}
	return owners
}
