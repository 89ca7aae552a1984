package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// validate checks value against schema: required fields, primitive types,
// array items and enums. Unlike jsonschema.Validate it reports the offending
// path. Properties absent from the schema are allowed.
func validate(value any, schema *jsonschema.Definition, path string) error {
	if schema == nil {
		return nil
	}
	if value == nil && schema.Nullable {
		return nil
	}
	if err := validateType(value, schema.Type); err != nil {
		return fmt.Errorf("%s: %w", describe(path), err)
	}
	if len(schema.Enum) > 0 && !slices.Contains(schema.Enum, enumValue(value)) {
		return fmt.Errorf("%s: value %v not in %v", describe(path), value, schema.Enum)
	}

	switch v := value.(type) {
	case map[string]any:
		for _, field := range schema.Required {
			if _, ok := v[field]; !ok {
				return fmt.Errorf("missing required field: %s", join(path, field))
			}
		}
		for key, prop := range schema.Properties {
			val, ok := v[key]
			if !ok {
				continue
			}
			if err := validate(val, &prop, join(path, key)); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range v {
			if err := validate(item, schema.Items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateType(value any, expected jsonschema.DataType) error {
	switch expected {
	case "":
		return nil
	case jsonschema.String:
		if _, ok := value.(string); ok {
			return nil
		}
	case jsonschema.Number:
		if isNumber(value) {
			return nil
		}
	case jsonschema.Integer:
		if isInteger(value) {
			return nil
		}
	case jsonschema.Boolean:
		if _, ok := value.(bool); ok {
			return nil
		}
	case jsonschema.Object:
		if _, ok := value.(map[string]any); ok {
			return nil
		}
	case jsonschema.Array:
		if _, ok := value.([]any); ok {
			return nil
		}
	case jsonschema.Null:
		if value == nil {
			return nil
		}
	default:
		return fmt.Errorf("unsupported schema type %q", expected)
	}
	return fmt.Errorf("expected %s but got %s", expected, jsonType(value))
}

// enumValue renders value the way enum members are written.
func enumValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float32, float64, int, int64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int64:
		return true
	case float64:
		return math.Trunc(v) == v
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}

func jsonType(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func describe(path string) string {
	if path == "" {
		return "arguments"
	}
	return "field " + path
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
