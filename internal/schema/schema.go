// Package schema validates request bodies and model outputs against
// declared JSON Schemas. Boundary validation failures become 4xx errors;
// model-output failures are recoverable results the pipeline handles by
// falling back, never by raising.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Result is the typed outcome of a validation. Exactly one of Parsed or
// Err is meaningful, discriminated by OK.
type Result[T any] struct {
	OK     bool
	Parsed T
	Err    error
}

// Validate checks raw JSON against a compiled schema and, on success,
// unmarshals it into T. The error carries the first violation as a
// human-readable field: message pair.
func Validate[T any](s *gojsonschema.Schema, raw []byte) Result[T] {
	var out Result[T]

	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		out.Err = fmt.Errorf("validate: %w", err)
		return out
	}
	if !res.Valid() {
		first := res.Errors()[0]
		field := first.Field()
		if field == "" {
			field = "(root)"
		}
		out.Err = fmt.Errorf("%s: %s", field, first.Description())
		return out
	}

	if err := json.Unmarshal(raw, &out.Parsed); err != nil {
		out.Err = fmt.Errorf("decode: %w", err)
		return out
	}
	out.OK = true
	return out
}

// ValidateValue marshals v and validates the result, for already-decoded
// values (e.g. a constructed GenerationResult before it is returned).
func ValidateValue[T any](s *gojsonschema.Schema, v any) Result[T] {
	raw, err := json.Marshal(v)
	if err != nil {
		return Result[T]{Err: fmt.Errorf("encode: %w", err)}
	}
	return Validate[T](s, raw)
}

func mustCompile(doc string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return s
}
