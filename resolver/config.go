package resolver

import (
	"encoding/json"
	"fmt"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

// ResolveConfig substitutes every {{node.field}} reference found in the
// node's string configuration values, returning a fresh config of the same
// variant. Keys the node type defers are left untouched.
func ResolveConfig(node model.Node, ctx model.ExecutionContext) (model.NodeConfig, error) {
	if node.Config == nil {
		return nil, nil
	}
	if _, ok := node.Config.(*model.UnknownConfig); ok {
		return node.Config, nil
	}
	params, err := configMap(node.Config)
	if err != nil {
		return nil, err
	}
	deferred := make(map[string]bool)
	for _, k := range node.Type.DeferredKeys() {
		deferred[k] = true
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if deferred[k] {
			out[k] = v
			continue
		}
		resolved, err := resolveValue(v, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return model.DecodeConfig(node.Type, data)
}

func resolveValue(v any, ctx model.ExecutionContext) (any, error) {
	switch val := v.(type) {
	case string:
		return ResolveVariables(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := resolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			r, err := resolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}
	return v, nil
}

func configMap(cfg model.NodeConfig) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s config: %w", cfg.NodeType(), err)
	}
	params := make(map[string]any)
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("decoding %s config: %w", cfg.NodeType(), err)
	}
	return params, nil
}

// configStrings collects every string value in a node's configuration.
func configStrings(cfg model.NodeConfig) []string {
	if cfg == nil {
		return nil
	}
	params, err := configMap(cfg)
	if err != nil {
		return nil
	}
	var out []string
	collectStrings(params, &out)
	return out
}

func collectStrings(v any, out *[]string) {
	switch val := v.(type) {
	case string:
		*out = append(*out, val)
	case map[string]any:
		for _, item := range val {
			collectStrings(item, out)
		}
	case []any:
		for _, item := range val {
			collectStrings(item, out)
		}
	}
}
