package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
)

type Format string

const FORMAT_TEXT Format = model.OUTPUT_FORMAT_TEXT
const FORMAT_JSON Format = model.OUTPUT_FORMAT_JSON
const FORMAT_MARKDOWN Format = model.OUTPUT_FORMAT_MARKDOWN

const CONTENT_FIELD = "content"

var (
	fencedJSON   = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	headingLine  = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	nonWordChars = regexp.MustCompile(`[^\w\s]`)
)

// Parse turns raw generation output into a field map. The raw text is always
// kept under "content". JSON extraction is best effort and never fails: when
// nothing parses only "content" is returned.
func Parse(content string, format Format) map[string]any {
	fields := make(map[string]any)
	switch format {
	case FORMAT_JSON:
		for k, v := range parseJSON(content) {
			fields[k] = v
		}
	case FORMAT_MARKDOWN:
		for k, v := range parseMarkdown(content) {
			fields[k] = v
		}
	}
	fields[CONTENT_FIELD] = content
	return fields
}

func parseJSON(content string) map[string]any {
	attempts := []func(string) (string, bool){
		func(s string) (string, bool) { return strings.TrimSpace(s), true },
		fencedBlock,
		func(s string) (string, bool) { return balanced(s, '{', '}') },
		func(s string) (string, bool) { return balanced(s, '[', ']') },
	}
	for _, attempt := range attempts {
		candidate, ok := attempt(content)
		if !ok {
			continue
		}
		if fields, ok := decode(candidate); ok {
			return fields
		}
	}
	return nil
}

func fencedBlock(s string) (string, bool) {
	m := fencedJSON.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// decode accepts objects and arrays; array items become item_0, item_1, ...
func decode(candidate string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, false
	}
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case []any:
		fields := make(map[string]any, len(val))
		for i, item := range val {
			fields[fmt.Sprintf("item_%d", i)] = item
		}
		return fields, true
	}
	return nil, false
}

// balanced returns the first substring that opens with open and closes at
// the matching depth, skipping delimiters inside JSON strings.
func balanced(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

type section struct {
	key   string
	level int
	start int
}

// parseMarkdown keys every heading's section text by its normalized title.
// A section runs until the next heading of the same or a higher level, so
// subsections are included in their parent. Duplicate keys: last one wins.
func parseMarkdown(content string) map[string]any {
	lines := strings.Split(content, "\n")
	var sections []section
	var headingIdx []int
	for i, line := range lines {
		m := headingLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		sections = append(sections, section{key: NormalizeKey(m[2]), level: len(m[1]), start: i + 1})
		headingIdx = append(headingIdx, i)
	}
	fields := make(map[string]any)
	for si, sec := range sections {
		end := len(lines)
		for j := si + 1; j < len(sections); j++ {
			if sections[j].level <= sec.level {
				end = headingIdx[j]
				break
			}
		}
		if sec.key == "" {
			continue
		}
		fields[sec.key] = strings.TrimSpace(strings.Join(lines[sec.start:end], "\n"))
	}
	return fields
}

// NormalizeKey lowercases, strips non-word characters and joins words with underscores.
func NormalizeKey(heading string) string {
	cleaned := nonWordChars.ReplaceAllString(strings.ToLower(heading), "")
	return strings.Join(strings.Fields(cleaned), "_")
}

// ExtractTitle picks a title from parsed fields or falls back to the first
// non-empty line of the content, trimmed of markdown markers.
func ExtractTitle(fields map[string]any, max int) string {
	for _, key := range []string{"title", "headline"} {
		if v, ok := fields[key].(string); ok && strings.TrimSpace(v) != "" {
			return truncate(strings.TrimSpace(v), max)
		}
	}
	content, _ := fields[CONTENT_FIELD].(string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#*-> "))
		line = strings.Trim(line, "*_`\"")
		if line != "" && !strings.HasPrefix(line, "```") {
			return truncate(line, max)
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max-3])) + "..."
}
