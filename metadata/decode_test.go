package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

const yamlTemplate = `
id: newsletter
name: Newsletter
default_params:
  tone: friendly
nodes:
  - id: start
    type: start
  - id: draft
    type: text_generation
    config:
      prompt: "Write a {{start.tone}} newsletter"
      model: m
      temperature: 0.2
  - id: check
    type: conditional
    config:
      condition:
        left: "{{draft.content_length}}"
        operator: ">"
        right: 10
  - id: finish
    type: finish
edges:
  - {source: start, target: draft}
  - {source: draft, target: check}
  - {source: check, target: finish, branch: "true"}
`

func TestDecodeTemplate(t *testing.T) {
	tpl, err := DecodeTemplate([]byte(yamlTemplate))
	require.NoError(t, err)
	require.Equal(t, "newsletter", tpl.Id)
	require.Equal(t, "friendly", tpl.DefaultParams["tone"])
	require.Len(t, tpl.Nodes, 4)

	draft, ok := tpl.Nodes[1].Config.(*model.TextGenerationConfig)
	require.True(t, ok)
	require.Equal(t, 0.2, draft.TemperatureOrDefault())

	check, ok := tpl.Nodes[2].Config.(*model.ConditionalConfig)
	require.True(t, ok)
	require.EqualValues(t, 10, check.Condition.Right)
	require.Equal(t, "true", tpl.Edges[2].Branch)
	require.True(t, NewValidator().Validate(tpl).Valid)

	fromJSON, err := DecodeTemplate([]byte(`{"id":"j","nodes":[{"id":"start","type":"start"}]}`))
	require.NoError(t, err)
	require.Equal(t, "j", fromJSON.Id)

	_, err = DecodeTemplate([]byte("nodes: [unclosed"))
	require.Error(t, err)
}
