package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/docufield/docufield/constants"
)

// Document represents one uploaded artifact for data transfer between layers.
type Document struct {
	ID                 uuid.UUID                `json:"id"`
	SchemaID           *uuid.UUID               `json:"schema_id,omitempty"`
	Filename           string                   `json:"filename"`
	SourcePath         string                   `json:"source_path"`
	ContentHash        string                   `json:"content_hash,omitempty"`
	FileSize           int                      `json:"file_size"`
	NumPages           int                      `json:"num_pages"`
	Status             constants.DocumentStatus `json:"status"`
	OverallConfidence  float64                  `json:"overall_confidence"`
	ProcessingStarted  *time.Time               `json:"processing_started_at,omitempty"`
	ProcessingFinished *time.Time               `json:"processing_completed_at,omitempty"`
	ErrorMessage       *string                  `json:"error_message,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// Page is one renderable unit of a document. QualityScore is computed once at
// OCR time and never updated afterwards.
type Page struct {
	ID           uuid.UUID `json:"id"`
	DocumentID   uuid.UUID `json:"document_id"`
	PageNumber   int       `json:"page_number"`
	ImagePath    string    `json:"image_path"`
	QualityScore float64   `json:"quality_score"`
	CreatedAt    time.Time `json:"created_at"`
}
