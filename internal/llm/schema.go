package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/entity"
)

// BuildFieldsJSONSchema returns a JSON-Schema (draft 2020-12 subset) for the
// flat extraction object: one property per schema field plus its
// <name>_confidence companion. Values stay permissive, since OCR noise means
// a "number" field may legitimately arrive as a string; confidences are
// strictly numbers in [0,1].
func BuildFieldsJSONSchema(fields []entity.SchemaField) map[string]any {
	props := make(map[string]any, len(fields)*2)
	for _, f := range fields {
		props[f.FieldName] = valueProp(f)
		props[f.FieldName+"_confidence"] = map[string]any{
			"type":    []string{"number", "null"},
			"minimum": 0.0,
			"maximum": 1.0,
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func valueProp(f entity.SchemaField) map[string]any {
	switch f.FieldType {
	case constants.FieldCheckbox:
		return map[string]any{"type": []string{"boolean", "string", "null"}}
	case constants.FieldNumber:
		return map[string]any{"type": []string{"number", "string", "null"}}
	default:
		return map[string]any{"type": []string{"string", "number", "null"}}
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
