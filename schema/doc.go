// Package schema defines structured output contracts for agents and validates
// raw model text against them.
//
// A Schema is an ordered list of named, typed fields. Schemas are declared
// explicitly with New and the field helpers, or derived from a Go struct with
// For using its json tags plus an optional schema tag for cardinality:
//
//	type Names struct {
//	    Names []string `json:"names" schema:"minItems=3,maxItems=3"`
//	}
//
//	s := schema.MustFor[Names]("names")
//	out, err := schema.Validate(raw, s)
//
// Validate is pure. It names the first offending field in a *core.ValidationError
// and never retries.
package schema
