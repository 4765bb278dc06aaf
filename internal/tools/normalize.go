package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// maxNormalizeDepth caps how many times the normalizer will parse the
// raw payload. Agent frameworks routinely double- and triple-serialize
// tool arguments; three parses accepts a plain object, a JSON string,
// and a JSON string inside a JSON string.
const maxNormalizeDepth = 3

// normalizeInput decodes the raw payload, re-parsing while the decoded
// value is still a string. Returns a map, or a slice for bulk tools;
// every other terminal type is rejected. Numbers are kept as
// json.Number so int/float literals survive the later re-encode into
// the typed input model.
func normalizeInput(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	data := []byte(raw)
	var value any
	for depth := 0; ; depth++ {
		if depth >= maxNormalizeDepth {
			return nil, invalidf("input exceeds maximum nesting depth (%d)", maxNormalizeDepth)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&value); err != nil {
			return nil, invalidf("input is not valid JSON: %v", err)
		}
		s, isString := value.(string)
		if !isString {
			break
		}
		data = []byte(s)
	}

	switch value.(type) {
	case map[string]any, []any:
		return value, nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, invalidf("input must be a JSON object (got %T)", value)
	}
}

// inputMap shapes the normalized value for a tool: objects pass
// through, bare arrays are wrapped under the tool's list field.
func inputMap(t *CogniTool, value any) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case []any:
		if t.ListField == "" {
			return nil, invalidf("%s does not accept a top-level array", t.Name)
		}
		return map[string]any{t.ListField: v}, nil
	}
	return nil, invalidf("input must be a JSON object (got %T)", value)
}

// decodeInput re-encodes the normalized map into the tool's typed input
// model. Unknown fields are tolerated; type mismatches are validation
// errors.
func decodeInput(t *CogniTool, m map[string]any) (any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	input := reflect.New(t.InputType).Interface()
	if err := json.Unmarshal(raw, input); err != nil {
		return nil, invalidf("input does not match the %s model: %v", t.Name, err)
	}
	return input, nil
}
