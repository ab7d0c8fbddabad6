package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/systmms/secretref/internal/tree"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed secrets.schema.json
var secretsSchema string

var schemaLoader = gojsonschema.NewStringLoader(secretsSchema)

// validateSchema checks the secrets section against the embedded schema
func validateSchema(section *tree.Node) error {
	jsonData, err := json.Marshal(section.Interface())
	if err != nil {
		return fmt.Errorf("failed to marshal secrets section for validation: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return fmt.Errorf("schema validation failed:\n  - %s", strings.Join(errorMessages, "\n  - "))
	}
	return nil
}
