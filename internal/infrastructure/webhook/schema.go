package webhook

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/syncbridge/backend/internal/domain/integration"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// SchemaValidator validates JSON webhook payloads against per-provider schemas
type SchemaValidator struct {
	schemas map[integration.Provider]*jsonschema.Schema
}

// NewSchemaValidator compiles the embedded provider schemas
func NewSchemaValidator() (*SchemaValidator, error) {
	files, err := fs.Glob(schemaFS, "schemas/*.json")
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	v := &SchemaValidator{schemas: make(map[integration.Provider]*jsonschema.Schema, len(files))}
	for _, file := range files {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", file, err)
		}
		if err := compiler.AddResource(file, doc); err != nil {
			return nil, fmt.Errorf("schema %s: %w", file, err)
		}
		schema, err := compiler.Compile(file)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", file, err)
		}
		provider := integration.Provider(strings.TrimSuffix(path.Base(file), ".json"))
		v.schemas[provider] = schema
	}
	return v, nil
}

// Validate checks body against the provider schema. Non-JSON payloads and
// providers without a schema pass. Violations wrap integration.ErrWebhookMalformed.
func (v *SchemaValidator) Validate(provider integration.Provider, contentType string, body []byte) error {
	if contentType != "" && !strings.Contains(contentType, "json") {
		return nil
	}
	schema, ok := v.schemas[provider]
	if !ok {
		return nil
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrWebhookMalformed, err)
	}
	if err := schema.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", integration.ErrWebhookMalformed, verr.Error())
		}
		return fmt.Errorf("%w: %v", integration.ErrWebhookMalformed, err)
	}
	return nil
}
