package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is the JSON type of a field or array element.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Field describes a single property of a structured output.
type Field struct {
	Name        string
	Type        Type
	Items       Type // element type for arrays; empty accepts any element
	Required    bool
	MinItems    int
	MaxItems    int // 0 means unbounded
	Description string
}

// Schema is the structured output contract of an agent.
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

// New creates a schema from the given fields, kept in declaration order.
func New(name string, fields ...Field) *Schema {
	return &Schema{Name: name, Fields: fields}
}

// WithDescription returns a copy of s with the description set.
func (s *Schema) WithDescription(desc string) *Schema {
	c := *s
	c.Description = desc

	return &c
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return Field{}, false
}

// AllRequired reports whether every field is required. Strict constrained
// decoding modes only accept such schemas.
func (s *Schema) AllRequired() bool {
	for _, f := range s.Fields {
		if !f.Required {
			return false
		}
	}

	return true
}

// String creates a required string field.
func String(name, desc string) Field {
	return Field{Name: name, Type: TypeString, Required: true, Description: desc}
}

// Integer creates a required integer field.
func Integer(name, desc string) Field {
	return Field{Name: name, Type: TypeInteger, Required: true, Description: desc}
}

// Number creates a required number field.
func Number(name, desc string) Field {
	return Field{Name: name, Type: TypeNumber, Required: true, Description: desc}
}

// Boolean creates a required boolean field.
func Boolean(name, desc string) Field {
	return Field{Name: name, Type: TypeBoolean, Required: true, Description: desc}
}

// Array creates a required array field whose elements are of type items.
func Array(name string, items Type, desc string) Field {
	return Field{Name: name, Type: TypeArray, Items: items, Required: true, Description: desc}
}

// Object creates a required object field.
func Object(name, desc string) Field {
	return Field{Name: name, Type: TypeObject, Required: true, Description: desc}
}

// Optional returns a copy of f that may be omitted.
func (f Field) Optional() Field {
	f.Required = false
	return f
}

// Len returns a copy of f constrained to between min and max items.
func (f Field) Len(min, max int) Field {
	f.MinItems = min
	f.MaxItems = max

	return f
}

// JSONSchema renders s as a JSON Schema object suitable for backends that
// support constrained decoding.
func (s *Schema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))

	for _, f := range s.Fields {
		prop := map[string]any{"type": string(f.Type)}
		if f.Description != "" {
			prop["description"] = f.Description
		}

		if f.Type == TypeArray {
			if f.Items != "" {
				prop["items"] = map[string]any{"type": string(f.Items)}
			} else {
				prop["items"] = map[string]any{}
			}

			if f.MinItems > 0 {
				prop["minItems"] = f.MinItems
			}

			if f.MaxItems > 0 {
				prop["maxItems"] = f.MaxItems
			}
		}

		properties[f.Name] = prop

		if f.Required {
			required = append(required, f.Name)
		}
	}

	js := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}

	if s.Description != "" {
		js["description"] = s.Description
	}

	return js
}

// Instructions renders a prompt fragment asking for output conforming to s,
// for backends without native constrained decoding.
func (s *Schema) Instructions() string {
	data, _ := json.MarshalIndent(s.JSONSchema(), "", "  ")

	var b strings.Builder

	fmt.Fprintf(&b, "Respond only with a JSON object named %q that matches this JSON Schema:\n", s.Name)
	b.Write(data)

	return b.String()
}
