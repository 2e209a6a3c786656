package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON returns the JSON payload of a model response, stripping a
// markdown code fence when present.
func ExtractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if m := fencedBlockRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// DecodeJSON decodes a model response into v, accepting either a fenced
// ```json block or raw JSON. Unknown fields and trailing content are
// rejected so schema drift surfaces as an error instead of silent zero
// values.
func DecodeJSON(content string, v any) error {
	payload := ExtractJSON(content)
	if payload == "" {
		return fmt.Errorf("empty model response")
	}

	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}

	var trailing struct{}
	if err := decoder.Decode(&trailing); err != io.EOF {
		return fmt.Errorf("unexpected trailing content")
	}
	return nil
}
