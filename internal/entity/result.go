package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OCRResult is one (page, engine) invocation. Rows are append-only; the best
// candidate is recoverable by re-applying the router's selection rule, never
// stored as a flag.
type OCRResult struct {
	ID             uuid.UUID       `json:"id"`
	PageID         uuid.UUID       `json:"page_id"`
	Engine         string          `json:"engine"`
	Text           string          `json:"text"`
	Confidence     float64         `json:"confidence"`
	BoundingBoxes  json.RawMessage `json:"bounding_boxes,omitempty"`
	ProcessingTime time.Duration   `json:"processing_time"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ExtractionResult is one (page, model) invocation, append-only like OCRResult.
type ExtractionResult struct {
	ID             uuid.UUID       `json:"id"`
	PageID         uuid.UUID       `json:"page_id"`
	Model          string          `json:"model"`
	InputText      string          `json:"input_text"`
	Output         json.RawMessage `json:"output,omitempty"`
	Confidence     float64         `json:"confidence"`
	ProcessingTime time.Duration   `json:"processing_time"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ProcessingLogEntry is an append-only pipeline event. The log is the sole
// source of truth for progress reporting and failure diagnosis.
type ProcessingLogEntry struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	Level      string    `json:"level"`
	CreatedAt  time.Time `json:"created_at"`
}
