package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/docufield/docufield/constants"
)

// Schema groups the field definitions a document can be bound to.
type Schema struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SchemaField is the schema layer's field definition, consumed read-only by
// extraction and validation.
type SchemaField struct {
	ID              uuid.UUID           `json:"id"`
	SchemaID        uuid.UUID           `json:"schema_id"`
	FieldName       string              `json:"field_name"`
	FieldLabel      string              `json:"field_label"`
	FieldType       constants.FieldType `json:"field_type"`
	IsRequired      bool                `json:"is_required"`
	RegexValidation string              `json:"regex_validation,omitempty"`
	DropdownOptions []string            `json:"dropdown_options,omitempty"`
	DisplayOrder    int                 `json:"display_order"`
}

// FieldValue is the single row per (document, schema field). The pipeline
// writes ExtractedValue/NormalizedValue/Confidence/NeedsReview; a human
// reviewer later overwrites FinalValue and clears NeedsReview.
type FieldValue struct {
	ID              uuid.UUID  `json:"id"`
	DocumentID      uuid.UUID  `json:"document_id"`
	FieldID         uuid.UUID  `json:"field_id"`
	FieldName       string     `json:"field_name"`
	ExtractedValue  *string    `json:"extracted_value,omitempty"`
	NormalizedValue *string    `json:"normalized_value,omitempty"`
	FinalValue      *string    `json:"final_value,omitempty"`
	Confidence      float64    `json:"confidence_score"`
	NeedsReview     bool       `json:"needs_review"`
	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ExportValue resolves the value an export row should carry:
// final_value ?? normalized_value ?? extracted_value ?? "".
func (v *FieldValue) ExportValue() string {
	for _, p := range []*string{v.FinalValue, v.NormalizedValue, v.ExtractedValue} {
		if p != nil && *p != "" {
			return *p
		}
	}
	return ""
}
