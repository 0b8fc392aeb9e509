package validate

import (
	"bytes"
	stderrors "errors"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cifworks/ciftree/pkg/errors"
)

// JSONSchemaGate validates JSON documents against a compiled JSON schema
type JSONSchemaGate struct {
	schema *jsonschema.Schema
}

// NewJSONSchemaGate compiles the schema at path
func NewJSONSchemaGate(path string) (*JSONSchemaGate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeNotFound, "JSON schema %s", path)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig,
			"failed to read JSON schema %s", path)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(path, doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to register JSON schema")
	}
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig,
			"failed to compile JSON schema %s", path)
	}
	return &JSONSchemaGate{schema: schema}, nil
}

// Validate checks one JSON document. Schema violations land in the result's
// error list; a document that is not JSON at all is also a violation, not an
// engine failure.
func (g *JSONSchemaGate) Validate(document []byte) (Result, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(document))
	if err != nil {
		return Result{Valid: false, Errors: []string{"document is not valid JSON: " + err.Error()}}, nil
	}

	err = g.schema.Validate(inst)
	if err == nil {
		return Result{Valid: true}, nil
	}

	var verr *jsonschema.ValidationError
	if stderrors.As(err, &verr) {
		return Result{Valid: false, Errors: leafMessages(verr)}, nil
	}
	return Result{}, errors.Wrap(err, errors.ErrorTypeInternal, "JSON validation failed")
}

// leafMessages flattens the cause tree into one message per concrete failure
func leafMessages(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{verr.Error()}
	}
	var msgs []string
	for _, cause := range verr.Causes {
		msgs = append(msgs, leafMessages(cause)...)
	}
	return msgs
}
