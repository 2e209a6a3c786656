package note

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingFrontmatter reports a note without a leading YAML block.
// Tolerant callers treat the whole content as body.
var ErrMissingFrontmatter = errors.New("missing yaml frontmatter")

// splitFrontmatter separates the leading "---" delimited YAML block
// from the markdown body.
func splitFrontmatter(content string) (string, string, error) {
	text := strings.TrimPrefix(content, "\uFEFF")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", ErrMissingFrontmatter
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return "", "", errors.New("missing closing frontmatter separator")
	}

	return strings.Join(lines[1:end], "\n"), strings.Join(lines[end+1:], "\n"), nil
}

// DecodeFrontmatter parses the YAML block into v and returns the body.
func DecodeFrontmatter(content string, v any) (string, error) {
	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return "", err
	}
	if err := yaml.Unmarshal([]byte(fm), v); err != nil {
		return "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return body, nil
}

func renderFrontmatter(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	return "---\n" + string(data) + "---\n", nil
}
