package reader

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// SplitFrontMatter separates a leading YAML block fenced by "---" lines from the body.
// Content without a header yields empty metadata and the unchanged content as body.
func SplitFrontMatter(content string) (map[string]any, string, error) {
	content = strings.TrimPrefix(content, "\uFEFF")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	first, rest, ok := strings.Cut(content, "\n")
	if !ok || strings.TrimSpace(first) != delimiter {
		return map[string]any{}, content, nil
	}

	var header []string
	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed == delimiter || trimmed == "..." {
			meta, err := parseHeader(strings.Join(header, "\n"))
			if err != nil {
				return nil, "", err
			}
			return meta, strings.Join(lines[i+1:], "\n"), nil
		}
		header = append(header, line)
	}

	// unterminated fence: treat the whole file as body
	return map[string]any{}, content, nil
}

func parseHeader(src string) (map[string]any, error) {
	meta := map[string]any{}
	if strings.TrimSpace(src) == "" {
		return meta, nil
	}
	if err := yaml.Unmarshal([]byte(src), &meta); err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}
	for k, v := range meta {
		meta[k] = normalize(v)
	}
	return meta, nil
}

// normalize makes header values JSON-stable: timestamps become date or RFC 3339 strings
// and nested maps get string keys.
func normalize(v any) any {
	switch tv := v.(type) {
	case time.Time:
		if tv.Equal(time.Date(tv.Year(), tv.Month(), tv.Day(), 0, 0, 0, 0, tv.Location())) {
			return tv.Format(time.DateOnly)
		}
		return tv.Format(time.RFC3339)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	}
	return v
}
