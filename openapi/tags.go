package openapi

import (
	"strconv"
	"strings"
)

// tagSetters apply one key of the `openapi` struct tag. Values that fail
// to parse are ignored.
//
//	Name string `json:"name" openapi:"description=Full name,minLength=1,example=Alice"`
//
// See: https://json-schema.org/draft/2020-12/json-schema-validation
var tagSetters = map[string]func(s *Schema, value string){
	"description": func(s *Schema, v string) { s.Description = v },
	"title":       func(s *Schema, v string) { s.Title = v },
	"format":      func(s *Schema, v string) { s.Format = v },
	"pattern":     func(s *Schema, v string) { s.Pattern = v },
	"example":     func(s *Schema, v string) { s.Example = typedValue(s, v) },
	"const":       func(s *Schema, v string) { s.Const = typedValue(s, v) },
	"enum": func(s *Schema, v string) {
		s.Enum = nil
		for item := range strings.SplitSeq(v, "|") {
			s.Enum = append(s.Enum, item)
		}
	},

	"deprecated":  func(s *Schema, _ string) { s.Deprecated = true },
	"readOnly":    func(s *Schema, _ string) { s.ReadOnly = true },
	"writeOnly":   func(s *Schema, _ string) { s.WriteOnly = true },
	"uniqueItems": func(s *Schema, _ string) { s.UniqueItems = true },

	"minimum":          floatSetter(func(s *Schema) **float64 { return &s.Minimum }),
	"maximum":          floatSetter(func(s *Schema) **float64 { return &s.Maximum }),
	"exclusiveMinimum": floatSetter(func(s *Schema) **float64 { return &s.ExclusiveMinimum }),
	"exclusiveMaximum": floatSetter(func(s *Schema) **float64 { return &s.ExclusiveMaximum }),
	"multipleOf":       floatSetter(func(s *Schema) **float64 { return &s.MultipleOf }),

	"minLength":     intSetter(func(s *Schema) **int { return &s.MinLength }),
	"maxLength":     intSetter(func(s *Schema) **int { return &s.MaxLength }),
	"minItems":      intSetter(func(s *Schema) **int { return &s.MinItems }),
	"maxItems":      intSetter(func(s *Schema) **int { return &s.MaxItems }),
	"minProperties": intSetter(func(s *Schema) **int { return &s.MinProperties }),
	"maxProperties": intSetter(func(s *Schema) **int { return &s.MaxProperties }),
}

func floatSetter(field func(*Schema) **float64) func(*Schema, string) {
	return func(s *Schema, v string) {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*field(s) = &f
		}
	}
}

func intSetter(field func(*Schema) **int) func(*Schema, string) {
	return func(s *Schema, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*field(s) = &n
		}
	}
}

// applyOpenAPITag applies a comma separated list of key or key=value
// pairs to schema. Unknown keys are ignored.
func applyOpenAPITag(schema *Schema, tag string) {
	if tag == "" {
		return
	}
	for part := range strings.SplitSeq(tag, ",") {
		key, value, _ := strings.Cut(part, "=")
		if set, ok := tagSetters[strings.TrimSpace(key)]; ok {
			set(schema, strings.TrimSpace(value))
		}
	}
}

// typedValue converts a tag value to the first type of schema so examples
// and constants encode as numbers or booleans where the schema says so.
func typedValue(schema *Schema, value string) any {
	types := schema.Type.Values()
	if len(types) == 0 {
		return value
	}
	switch types[0] {
	case "integer":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return value
}
