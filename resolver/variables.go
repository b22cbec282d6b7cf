package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/oliveagle/jsonpath"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

var variablePattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+)\.([^{}\s]+?)\s*\}\}`)

type Reference struct {
	NodeId string
	Field  string
}

func (r Reference) String() string {
	return "{{" + r.NodeId + "." + r.Field + "}}"
}

func ParseVariables(text string) []Reference {
	matches := variablePattern.FindAllStringSubmatch(text, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Reference{NodeId: m[1], Field: m[2]})
	}
	return refs
}

// ParseReference returns the reference when text is exactly one {{node.field}}.
func ParseReference(text string) (Reference, bool) {
	trimmed := strings.TrimSpace(text)
	loc := variablePattern.FindStringSubmatchIndex(trimmed)
	if loc == nil || loc[0] != 0 || loc[1] != len(trimmed) {
		return Reference{}, false
	}
	return Reference{NodeId: trimmed[loc[2]:loc[3]], Field: trimmed[loc[4]:loc[5]]}, true
}

// Lookup returns the typed value a reference points at. Fields containing
// dots or brackets are treated as paths into the node's output.
func Lookup(ref Reference, ctx model.ExecutionContext) (any, error) {
	fields, ok := ctx[ref.NodeId]
	if !ok {
		return nil, ResolutionError{NodeId: ref.NodeId, Field: ref.Field, Available: nodeIds(ctx), MissingNode: true}
	}
	if v, ok := fields[ref.Field]; ok {
		return v, nil
	}
	if strings.ContainsAny(ref.Field, ".[") {
		data := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			data[k] = v
		}
		v, err := jsonpath.JsonPathLookup(normalize(data), "$."+ref.Field)
		if err == nil {
			return v, nil
		}
	}
	return nil, ResolutionError{NodeId: ref.NodeId, Field: ref.Field, Available: fieldNames(fields)}
}

func ResolveVariables(text string, ctx model.ExecutionContext) (string, error) {
	locs := variablePattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, nil
	}
	var sb strings.Builder
	last := 0
	for _, loc := range locs {
		ref := Reference{NodeId: text[loc[2]:loc[3]], Field: text[loc[4]:loc[5]]}
		v, err := Lookup(ref, ctx)
		if err != nil {
			return "", err
		}
		sb.WriteString(text[last:loc[0]])
		sb.WriteString(Stringify(v))
		last = loc[1]
	}
	sb.WriteString(text[last:])
	return sb.String(), nil
}

func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case int, int32, int64:
		return fmt.Sprintf("%d", val)
	case map[string]any, []any, []string, []map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

// normalize round-trips through JSON so path lookups only see maps and slices
// of interface values.
func normalize(data map[string]interface{}) map[string]interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return data
	}
	return out
}

func nodeIds(ctx model.ExecutionContext) []string {
	ids := make([]string, 0, len(ctx))
	for id := range ctx {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}
