package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

const validTemplate = `{
	"id": "campaign",
	"nodes": [
		{"id": "start", "type": "start"},
		{"id": "headline", "type": "text_generation", "config": {"prompt": "Headline about {{start.topic}}", "model": "gpt-4o"}},
		{"id": "check", "type": "conditional", "config": {"condition": {"left": "{{headline.content_length}}", "operator": ">", "right": 10}}},
		{"id": "image", "type": "image_generation", "config": {"prompt": "{{headline.content}}"}},
		{"id": "finish", "type": "finish"}
	],
	"edges": [
		{"source": "start", "target": "headline"},
		{"source": "headline", "target": "check"},
		{"source": "check", "target": "image", "branch": "true"},
		{"source": "check", "target": "finish", "branch": "false"},
		{"source": "image", "target": "finish"}
	]
}`

func loadTemplate(t *testing.T, raw string) *model.WorkflowTemplate {
	var tpl model.WorkflowTemplate
	require.NoError(t, json.Unmarshal([]byte(raw), &tpl))
	return &tpl
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	for scenario, fn := range map[string]func(t *testing.T, tpl *model.WorkflowTemplate){
		"valid graph": func(t *testing.T, tpl *model.WorkflowTemplate) {
			res := v.Validate(tpl)
			require.True(t, res.Valid, res.Errors)
			require.Empty(t, res.Errors)
			require.Empty(t, res.Warnings)
			require.NoError(t, res.Err())
		},
		"missing start": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Nodes = tpl.Nodes[1:]
			res := v.Validate(tpl)
			require.False(t, res.Valid)
			require.Contains(t, res.Errors, "workflow must have exactly one start node, found none")
		},
		"two starts": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Nodes = append(tpl.Nodes, model.Node{Id: "start2", Type: model.NODE_TYPE_START})
			tpl.Edges = append(tpl.Edges, model.Edge{Source: "start", Target: "start2"})
			res := v.Validate(tpl)
			require.False(t, res.Valid)
			require.Contains(t, res.Errors[0], "found 2")
		},
		"no finish": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Nodes = tpl.Nodes[:4]
			tpl.Edges = tpl.Edges[:3]
			res := v.Validate(tpl)
			require.Contains(t, res.Errors, "workflow must have at least one finish node")
		},
		"unknown type and missing fields": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Nodes = append(tpl.Nodes,
				model.Node{Id: "warp", Type: "teleport", Config: &model.UnknownConfig{Type: "teleport"}},
				model.Node{Id: "copy", Type: model.NODE_TYPE_GENERATE_COPY, Config: &model.TextGenerationConfig{Prompt: "x"}},
				model.Node{Id: "repeat", Type: model.NODE_TYPE_LOOP},
			)
			res := v.Validate(tpl)
			require.False(t, res.Valid)
			require.Contains(t, res.Errors, "node warp has unknown type teleport")
			require.Contains(t, res.Errors, "node copy (generate_copy) is missing required field model")
			require.Contains(t, res.Errors, "node repeat (loop) is missing required field iterations")
		},
		"dangling edge": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Edges = append(tpl.Edges, model.Edge{Source: "image", Target: "ghost"})
			res := v.Validate(tpl)
			require.Contains(t, res.Errors, "edge 5 references unknown target node ghost")
		},
		"bad branch": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Edges[2].Branch = "maybe"
			res := v.Validate(tpl)
			require.False(t, res.Valid)
		},
		"variable cycle": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Nodes[1].Config = &model.TextGenerationConfig{Prompt: "{{image.title}}", Model: "m"}
			res := v.Validate(tpl)
			require.False(t, res.Valid)
			require.Contains(t, res.Errors[0], "headline -> image -> headline")
		},
		"edge cycle": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Edges = append(tpl.Edges, model.Edge{Source: "image", Target: "headline"})
			res := v.Validate(tpl)
			require.False(t, res.Valid)
			require.Contains(t, res.Errors[0], "edges form a cycle")
		},
		"unreachable is a warning": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Nodes = append(tpl.Nodes, model.Node{Id: "draft", Type: model.NODE_TYPE_REVIEW, Config: &model.ReviewConfig{}})
			res := v.Validate(tpl)
			require.True(t, res.Valid)
			require.Equal(t, []string{"node draft is not reachable from start node start"}, res.Warnings)
		},
		"loop body nodes": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Nodes = append(tpl.Nodes,
				model.Node{Id: "variants", Type: model.NODE_TYPE_LOOP, Config: &model.LoopConfig{Iterations: 3, Body: []string{"variant", "ghost"}}},
				model.Node{Id: "variant", Type: model.NODE_TYPE_TEXT_GENERATION, Config: &model.TextGenerationConfig{Prompt: "v{{variants.loop_current_index}}", Model: "m"}},
			)
			tpl.Edges = append(tpl.Edges, model.Edge{Source: "image", Target: "variants"}, model.Edge{Source: "variants", Target: "finish"})
			res := v.Validate(tpl)
			require.Equal(t, []string{"loop variants references unknown body node ghost"}, res.Errors)
			require.Empty(t, res.Warnings)
		},
		"review cannot sit in a loop body": func(t *testing.T, tpl *model.WorkflowTemplate) {
			tpl.Nodes = append(tpl.Nodes,
				model.Node{Id: "variants", Type: model.NODE_TYPE_LOOP, Config: &model.LoopConfig{Iterations: 2, Body: []string{"approve"}}},
				model.Node{Id: "approve", Type: model.NODE_TYPE_REVIEW, Config: &model.ReviewConfig{}},
			)
			tpl.Edges = append(tpl.Edges, model.Edge{Source: "image", Target: "variants"}, model.Edge{Source: "variants", Target: "finish"})
			res := v.Validate(tpl)
			require.False(t, res.Valid)
			require.Equal(t, []string{"loop variants cannot run review node approve in its body"}, res.Errors)
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, loadTemplate(t, validTemplate))
		})
	}
}
