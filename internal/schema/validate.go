package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Validate checks payload against the schema declared for kind. It reports
// missing required fields first, then constraint violations of present
// fields, then fields the schema does not declare. An unknown kind yields a
// single error.
//
// A required field that is present with the wrong type produces only the
// "Invalid type" error. Types in messages are JSON names (string, number,
// boolean, object, array, null).
func Validate(kind string, payload map[string]any) (bool, []string) {
	s, ok := schemas[kind]
	if !ok {
		return false, []string{fmt.Sprintf("Unknown event type: %s", kind)}
	}

	errs := []string{}

	for _, field := range s.Required {
		if _, present := payload[field]; !present {
			errs = append(errs, fmt.Sprintf("Missing required field: %s", field))
		}
	}

	for _, group := range [][]string{s.Required, s.Optional} {
		for _, field := range group {
			value, present := payload[field]
			if !present {
				continue
			}
			c, constrained := s.Fields[field]
			if constrained && !c.Accepts(value) {
				errs = append(errs, fmt.Sprintf("Invalid type for %s: %s", field, typeName(value)))
			}
		}
	}

	fields := make([]string, 0, len(payload))
	for field := range payload {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if !s.declares(field) {
			errs = append(errs, fmt.Sprintf("Unexpected field: %s", field))
		}
	}

	return len(errs) == 0, errs
}

// Accepts reports whether value satisfies the constraint.
func (c Constraint) Accepts(value any) bool {
	if c.Enum != nil {
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, allowed := range c.Enum {
			if s == allowed {
				return true
			}
		}
		return false
	}
	if len(c.Types) == 0 {
		return true
	}
	actual := categorize(value)
	for _, t := range c.Types {
		if t == actual {
			return true
		}
	}
	return false
}

// categorize maps a decoded JSON value to its generic category. Null has no
// category and never satisfies a type constraint.
func categorize(value any) FieldType {
	switch value.(type) {
	case string:
		return TypeString
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return TypeNumber
	case bool:
		return TypeBoolean
	case map[string]any:
		return TypeObject
	case []any:
		return TypeArray
	default:
		return ""
	}
}

func typeName(value any) string {
	if value == nil {
		return "null"
	}
	if t := categorize(value); t != "" {
		return string(t)
	}
	return fmt.Sprintf("%T", value)
}
