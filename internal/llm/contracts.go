package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/docufield/docufield/internal/entity"
)

// Thresholds for the cost/latency trade-off: a document counts as simple when
// OCR was confident and the text is short, and the mini model is good enough.
const (
	SimpleConfidenceThreshold = 0.85
	SimpleTextLimit           = 1000

	// ExcerptLimit caps how much OCR text is embedded in the prompt.
	ExcerptLimit = 2000

	// DefaultOverallConfidence is used when the model returned no
	// per-field confidences at all.
	DefaultOverallConfidence = 0.5
)

// ExtractRequest carries everything an extractor needs for one page.
type ExtractRequest struct {
	OCRText       string
	Fields        []entity.SchemaField
	OCRConfidence float64 // best OCR candidate confidence, the quality hint
}

// DocumentFields is the normalized extraction outcome. Values holds one entry
// per schema field name (nil when not found); Confidences the companion
// scores.
type DocumentFields struct {
	Model       string
	Values      map[string]any
	Confidences map[string]float64
	Overall     float64
	Raw         json.RawMessage
	Elapsed     time.Duration
}

// FieldExtractor is the interface the pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (DocumentFields, error)
}

// Simple reports whether the request qualifies for the mini model.
func (r ExtractRequest) Simple() bool {
	return r.OCRConfidence > SimpleConfidenceThreshold && len(r.OCRText) < SimpleTextLimit
}

// OverallConfidence computes the arithmetic mean of per-field confidences,
// falling back to the fixed mid-point when none are present.
func OverallConfidence(confidences map[string]float64) float64 {
	if len(confidences) == 0 {
		return DefaultOverallConfidence
	}
	var sum float64
	for _, c := range confidences {
		sum += c
	}
	return sum / float64(len(confidences))
}
