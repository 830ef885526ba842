package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentrelay/core"
)

// Validate parses raw model text and checks it against s. It returns the
// parsed value restricted to the declared fields. Unknown fields are ignored.
//
// On failure it returns a *core.ValidationError naming the first offending
// field in declaration order. A nil schema accepts any text and returns nil.
func Validate(raw string, s *Schema) (map[string]any, error) {
	if s == nil {
		return nil, nil
	}

	body := StripFences(raw)

	if !gjson.Valid(body) {
		return nil, &core.ValidationError{Schema: s.Name, Reason: "output is not valid JSON"}
	}

	root := gjson.Parse(body)
	if !root.IsObject() {
		return nil, &core.ValidationError{Schema: s.Name, Reason: "output must be a JSON object"}
	}

	obj := root.Map()
	out := make(map[string]any, len(s.Fields))

	var failures []core.FieldError

	for _, f := range s.Fields {
		v, ok := obj[f.Name]
		if !ok || v.Type == gjson.Null {
			if f.Required {
				failures = append(failures, core.FieldError{Field: f.Name, Reason: "required field is missing"})
			}

			continue
		}

		if reason := checkField(f, v); reason != "" {
			failures = append(failures, core.FieldError{Field: f.Name, Reason: reason})
			continue
		}

		out[f.Name] = v.Value()
	}

	if len(failures) > 0 {
		return nil, &core.ValidationError{
			Schema: s.Name,
			Field:  failures[0].Field,
			Reason: failures[0].Reason,
			Fields: failures,
		}
	}

	return out, nil
}

func checkField(f Field, v gjson.Result) string {
	if !matchesType(f.Type, v) {
		return fmt.Sprintf("expected %s, got %s", f.Type, describe(v))
	}

	if f.Type != TypeArray {
		return ""
	}

	items := v.Array()
	if len(items) < f.MinItems {
		return fmt.Sprintf("expected at least %d items, got %d", f.MinItems, len(items))
	}

	if f.MaxItems > 0 && len(items) > f.MaxItems {
		return fmt.Sprintf("expected at most %d items, got %d", f.MaxItems, len(items))
	}

	if f.Items != "" {
		for i, item := range items {
			if !matchesType(f.Items, item) {
				return fmt.Sprintf("item %d: expected %s, got %s", i, f.Items, describe(item))
			}
		}
	}

	return ""
}

func matchesType(t Type, v gjson.Result) bool {
	switch t {
	case TypeString:
		return v.Type == gjson.String
	case TypeBoolean:
		return v.Type == gjson.True || v.Type == gjson.False
	case TypeNumber:
		return v.Type == gjson.Number
	case TypeInteger:
		return v.Type == gjson.Number && v.Num == math.Trunc(v.Num)
	case TypeArray:
		return v.IsArray()
	case TypeObject:
		return v.IsObject()
	default:
		return true
	}
}

func describe(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.IsObject():
		return "object"
	case v.Type == gjson.True || v.Type == gjson.False:
		return "boolean"
	default:
		return strings.ToLower(v.Type.String())
	}
}

// StripFences removes a surrounding markdown code fence (``` or ```json).
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
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

	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// Decode converts a validated value into dst, typically a pointer to the
// struct the schema was derived from.
func Decode(value any, dst any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode into %T: %w", dst, err)
	}

	return nil
}
