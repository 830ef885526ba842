package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// For derives a schema from the exported fields of struct type T.
//
// Field names come from json tags. Fields are required unless tagged
// omitempty or declared as pointers. The schema tag accepts comma separated
// minItems=N and maxItems=N; the description tag sets the field description.
func For[T any](name string) (*Schema, error) {
	var zero T

	t := reflect.TypeOf(zero)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema %s: type %T is not a struct", name, zero)
	}

	s := &Schema{Name: name}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		jsonTag := sf.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		f := Field{
			Name:        sf.Name,
			Type:        jsonType(sf.Type),
			Required:    !hasOmitEmpty(jsonTag) && sf.Type.Kind() != reflect.Ptr,
			Description: sf.Tag.Get("description"),
		}

		if n, _, _ := strings.Cut(jsonTag, ","); n != "" {
			f.Name = n
		}

		if f.Type == TypeArray {
			f.Items = jsonType(sf.Type.Elem())
		}

		if err := applySchemaTag(&f, sf.Tag.Get("schema")); err != nil {
			return nil, fmt.Errorf("schema %s: field %s: %w", name, f.Name, err)
		}

		s.Fields = append(s.Fields, f)
	}

	return s, nil
}

// MustFor is like For but panics on error. Intended for package level schemas.
func MustFor[T any](name string) *Schema {
	s, err := For[T](name)
	if err != nil {
		panic(err)
	}

	return s
}

func applySchemaTag(f *Field, tag string) error {
	if tag == "" {
		return nil
	}

	for _, part := range strings.Split(tag, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return fmt.Errorf("malformed schema tag %q", part)
		}

		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("schema tag %s: %w", key, err)
		}

		switch key {
		case "minItems":
			f.MinItems = n
		case "maxItems":
			f.MaxItems = n
		default:
			return fmt.Errorf("unknown schema tag key %q", key)
		}
	}

	if f.MaxItems > 0 && f.MinItems > f.MaxItems {
		return fmt.Errorf("minItems %d exceeds maxItems %d", f.MinItems, f.MaxItems)
	}

	return nil
}

func jsonType(t reflect.Type) Type {
	switch t.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Bool:
		return TypeBoolean
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Map, reflect.Struct, reflect.Interface:
		return TypeObject
	case reflect.Ptr:
		return jsonType(t.Elem())
	default:
		return TypeString
	}
}

func hasOmitEmpty(tag string) bool {
	_, opts, _ := strings.Cut(tag, ",")
	for _, o := range strings.Split(opts, ",") {
		if o == "omitempty" {
			return true
		}
	}

	return false
}
