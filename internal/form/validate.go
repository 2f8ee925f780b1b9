package form

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
)

// validate checks the submission payload against a JSON schema compiled
// from the visible field descriptors.
func validate(fields []*Field, payload map[string]any) error {
	schema := compileSchema(fields)

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return apperr.Internal("compile form schema", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return apperr.Validation("the form contains values that cannot be saved")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(payloadJSON),
	)
	if err != nil {
		return apperr.Internal("run form validation", err)
	}

	if !result.Valid() {
		fieldErrors := make([]apperr.FieldError, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			fieldErrors = append(fieldErrors, apperr.FieldError{
				Field:   desc.Field(),
				Message: desc.Description(),
			})
		}
		return apperr.Validation("some fields are invalid").WithFieldErrors(fieldErrors)
	}
	return nil
}

// compileSchema maps the field descriptors onto a JSON schema document.
func compileSchema(fields []*Field) map[string]any {
	properties := make(map[string]any, len(fields))
	var required []string

	for _, field := range fields {
		properties[field.Name] = kindSchema(field)
		if field.Required {
			required = append(required, field.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func kindSchema(field *Field) map[string]any {
	switch field.Kind {
	case KindText, KindTextArea, KindDate:
		return map[string]any{"type": "string"}
	case KindNumber:
		return map[string]any{"type": "number"}
	case KindBoolean:
		return map[string]any{"type": "boolean"}
	case KindArray:
		return map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "object"},
		}
	case KindSelect, KindCustom:
		return map[string]any{}
	}
	return map[string]any{}
}
