package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(.*?)```")

// DecodeModelJSON unmarshals a JSON object from model output. The object may
// be the whole output, sit inside a fenced code block, or be surrounded by
// other text.
func DecodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	// Fast path: valid JSON as-is.
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(s, -1) {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), v); err == nil {
			return nil
		}
	}

	// Fallback: the outermost braces.
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}

	sub := s[start : end+1]
	err := json.Unmarshal([]byte(sub), v)
	if err == nil {
		return nil
	}

	// Braces in the surrounding prose: decode the first object that starts
	// at some '{' and ignore whatever follows it.
	for i := start; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		var raw json.RawMessage
		if json.NewDecoder(strings.NewReader(s[i:])).Decode(&raw) != nil {
			continue
		}
		if json.Unmarshal(raw, v) == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
}

// ExtractJSONObject returns the fields of the JSON object embedded in the
// model output. Output without a decodable object yields an empty map.
func ExtractJSONObject(outputText string) map[string]any {
	var out map[string]any
	if err := DecodeModelJSON(outputText, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
