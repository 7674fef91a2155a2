package graphio

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/visualscript/errors"
)

//go:embed schema/graph.schema.json
var graphSchema []byte

// GraphSchema returns the JSON schema graph documents are checked against
func GraphSchema() []byte {
	return append([]byte(nil), graphSchema...)
}

// ValidateDocument checks raw JSON against the graph document schema. It catches
// shape mistakes (missing ids, malformed links) before any node is instantiated.
func ValidateDocument(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(graphSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"graphio", "ValidateDocument", "schema validation")
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(msgs, "; ")),
		"graphio", "ValidateDocument", "schema validation")
}
