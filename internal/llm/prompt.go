package llm

import (
	"strings"

	"github.com/docufield/docufield/internal/entity"
)

// BuildSystemPrompt is the fixed system message for extraction runs.
func BuildSystemPrompt() string {
	return "You are a document extraction expert. Extract fields accurately and return only valid JSON."
}

// BuildUserPrompt composes the extraction instruction: the schema's field
// names/types/labels, a size-capped excerpt of the OCR text, and the flat
// key/value + <field>_confidence response contract.
func BuildUserPrompt(ocrText string, fields []entity.SchemaField) string {
	var b strings.Builder

	b.WriteString("Extract the following fields from the OCR text below. Return ONLY a valid JSON object.\n\n")
	b.WriteString("Required fields:\n")
	for _, f := range fields {
		b.WriteString("- ")
		b.WriteString(f.FieldName)
		b.WriteString(" (")
		b.WriteString(string(f.FieldType))
		b.WriteString("): ")
		b.WriteString(f.FieldLabel)
		if len(f.DropdownOptions) > 0 {
			b.WriteString(" [one of: ")
			b.WriteString(strings.Join(f.DropdownOptions, ", "))
			b.WriteString("]")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nOCR Text:\n")
	excerpt := ocrText
	if len(excerpt) > ExcerptLimit {
		excerpt = excerpt[:ExcerptLimit]
	}
	b.WriteString(excerpt)

	b.WriteString("\n\nReturn format:\n{\n")
	b.WriteString("    \"field_name\": \"extracted_value\",\n")
	b.WriteString("    \"field_name_confidence\": 0.95\n}\n\n")
	b.WriteString("If a field is not found, use null for value and 0.0 for confidence.\n")
	return b.String()
}
