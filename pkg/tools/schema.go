package tools

import (
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// SchemaFor derives an object schema from the struct T. Property names come
// from json tags, descriptions from description tags and allowed values from
// comma-separated enum tags. Fields are required unless tagged omitempty.
func SchemaFor[T any]() (*jsonschema.Definition, error) {
	var zero T
	d, err := jsonschema.GenerateSchemaForType(zero)
	if err != nil {
		return nil, fmt.Errorf("derive schema for %T: %w", zero, err)
	}
	return d, nil
}

// MustSchemaFor is SchemaFor for argument structs known at compile time.
func MustSchemaFor[T any]() *jsonschema.Definition {
	d, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return d
}

func emptyObjectSchema() *jsonschema.Definition {
	return &jsonschema.Definition{Type: jsonschema.Object, Properties: map[string]jsonschema.Definition{}}
}

// settle fills nil Properties on every schema reached through a pointer.
// Definition.MarshalJSON writes them in place otherwise, and declarations are
// marshalled by concurrent requests.
func settle(d *jsonschema.Definition) {
	if d == nil {
		return
	}
	if d.Properties == nil {
		d.Properties = map[string]jsonschema.Definition{}
	}
	settle(d.Items)
	for _, prop := range d.Properties {
		settle(prop.Items)
	}
}
