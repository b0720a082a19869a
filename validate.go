package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// disableStrictValidationEnvVar is spec.md §6's single observable control:
// setting it disables the compiled jsonschema validator and falls back to
// accepting any well-formed JSON, mirroring the source's dynamic-validation
// toggle collapsed here into one runtime check rather than an import-time
// backend swap.
const disableStrictValidationEnvVar = "MCP_DISABLE_STRICT_VALIDATION"

// strictValidationDisabled reports whether the fallback path is active.
func strictValidationDisabled() bool {
	return os.Getenv(disableStrictValidationEnvVar) != ""
}

// SchemaValidator validates a tool's arguments or a structured result
// against a JSON Schema (spec.md §9's validation-backend note). Unlike a
// dynamic-fallback toggle that picks a backend per call, a SchemaValidator
// is compiled once for a given schema and reused — the only validation
// backend this package offers.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles schema (a JSON Schema document) into a
// reusable SchemaValidator.
func NewSchemaValidator(resourceName string, schema json.RawMessage) (*SchemaValidator, error) {
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, newError(KindNonRetryable, "compile_schema", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, bytes.NewReader(schema)); err != nil {
		return nil, newError(KindNonRetryable, "compile_schema", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, newError(KindNonRetryable, "compile_schema", err)
	}
	return &SchemaValidator{schema: compiled}, nil
}

// Validate checks data (typically a tool call's arguments) against the
// compiled schema. When MCP_DISABLE_STRICT_VALIDATION is set, Validate only
// confirms data is well-formed JSON and skips the schema check entirely.
func (v *SchemaValidator) Validate(data json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return newError(KindParseError, "validate", err)
	}
	if strictValidationDisabled() {
		return nil
	}
	if err := v.schema.Validate(doc); err != nil {
		return newError(KindNonRetryable, "validate", fmt.Errorf("schema validation failed: %w", err))
	}
	return nil
}
