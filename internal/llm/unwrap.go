package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// envelopeKeys are the wrapper keys providers have been seen to nest results under,
// in the order they are tried.
var envelopeKeys = []string{"object", "data", "result", "output", "response", "properties"}

// Unwrap extracts a JSON object containing every key in required from raw generated text.
//
// Shapes are tried in order:
//  1. the object itself
//  2. the object nested under one envelope key
//  3. a JSON document encoded as a string (top level or under an envelope key)
//  4. a bare array, when exactly one key is required
//
// When nothing matches the error wraps ErrMalformedResult.
func Unwrap(raw string, required ...string) (map[string]any, error) {
	text := StripCodeFences(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedResult)
	}

	v, err := parseLoose(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResult, err)
	}

	if obj, ok := unwrapValue(v, required, 2); ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: no known shape carries %v", ErrMalformedResult, required)
}

func unwrapValue(v any, required []string, depth int) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		if hasKeys(val, required) {
			return val, true
		}
		if depth == 0 {
			return nil, false
		}
		for _, key := range envelopeKeys {
			inner, ok := val[key]
			if !ok {
				continue
			}
			if obj, ok := unwrapValue(inner, required, depth-1); ok {
				return obj, true
			}
		}
	case string:
		if depth == 0 {
			return nil, false
		}
		inner, err := parseLoose(StripCodeFences(val))
		if err != nil {
			return nil, false
		}
		return unwrapValue(inner, required, depth-1)
	case []any:
		if len(required) == 1 {
			return map[string]any{required[0]: val}, true
		}
	}
	return nil, false
}

func hasKeys(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

// parseLoose decodes text as JSON, falling back to the outermost {...} span
// when the model surrounded the document with prose.
func parseLoose(text string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(text), &v)
	if err == nil {
		return v, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if err2 := json.Unmarshal([]byte(text[start:end+1]), &v); err2 != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// StripCodeFences removes a surrounding markdown code fence (``` or ```lang) from s.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeInto re-encodes an unwrapped object into the caller's struct.
func decodeInto(obj map[string]any, out any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("%w: re-encode: %w", ErrMalformedResult, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode into %T: %w", ErrMalformedResult, out, err)
	}
	return nil
}
