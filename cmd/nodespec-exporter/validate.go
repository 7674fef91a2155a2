package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/visualscript/graphio"
)

// specSchema is the contract editors rely on when reading exported specs
const specSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "kind", "inputs", "outputs", "configuration"],
  "properties": {
    "type": {"type": "string", "minLength": 1},
    "kind": {"enum": ["event", "flow", "function", "async"]},
    "inputs": {"type": "array", "items": {"$ref": "#/definitions/socket"}},
    "outputs": {"type": "array", "items": {"$ref": "#/definitions/socket"}},
    "configuration": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "valueType"],
        "properties": {"name": {"type": "string", "minLength": 1}, "valueType": {"type": "string"}}
      }
    }
  },
  "definitions": {
    "socket": {
      "type": "object",
      "required": ["name", "valueType"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "valueType": {"type": "string", "minLength": 1}
      }
    }
  }
}`

var specSchemaLoader = gojsonschema.NewStringLoader(specSchema)

// validateSpec checks spec against specSchema
func validateSpec(spec graphio.NodeSpec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal spec for validation: %w", err)
	}
	result, err := gojsonschema.Validate(specSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		var b strings.Builder
		fmt.Fprintf(&b, "node spec validation failed for %s:", spec.Type)
		for _, desc := range result.Errors() {
			fmt.Fprintf(&b, "\n  - %s: %s", desc.Field(), desc.Description())
		}
		return fmt.Errorf("%s", b.String())
	}
	return nil
}
