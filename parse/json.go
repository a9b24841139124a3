package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// maxJSONDepth limits recursion when flattening to guard against deeply
// nested input.
const maxJSONDepth = 100

// JSONParser flattens arbitrary JSON into readable "path: value" lines,
// one line per leaf, before chunking. Keys are walked in sorted order so
// output is deterministic.
type JSONParser struct {
	cfg Config
}

var _ Parser = (*JSONParser)(nil)

// NewJSONParser creates a JSON parser with the given chunking config.
func NewJSONParser(cfg Config) *JSONParser {
	return &JSONParser{cfg: cfg.withDefaults()}
}

func (p *JSONParser) Name() string { return "json" }

func (p *JSONParser) Parse(ctx context.Context, r io.Reader) ([]RawChunk, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return nil, nil
	}

	var data any
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	var lines []string
	flattenJSON("", data, &lines, 0)
	text := strings.Join(lines, "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	texts, err := p.cfg.chunkAll(ctx, text)
	if err != nil {
		return nil, err
	}
	return textChunks(texts, nil), nil
}

func flattenJSON(prefix string, v any, lines *[]string, depth int) {
	if depth >= maxJSONDepth {
		*lines = append(*lines, labelOf(prefix)+": <truncated>")
		return
	}
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenJSON(key, val[k], lines, depth+1)
		}
	case []any:
		if allScalars(val) {
			parts := make([]string, len(val))
			for i, item := range val {
				parts[i] = scalarString(item)
			}
			*lines = append(*lines, labelOf(prefix)+": "+strings.Join(parts, ", "))
			return
		}
		for _, item := range val {
			flattenJSON(prefix, item, lines, depth+1)
		}
	case nil:
		// null carries no searchable content
	default:
		*lines = append(*lines, labelOf(prefix)+": "+scalarString(val))
	}
}

func labelOf(prefix string) string {
	if prefix == "" {
		return "value"
	}
	return prefix
}

func allScalars(arr []any) bool {
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case nil:
		return "null"
	}
	return fmt.Sprintf("%v", v)
}
