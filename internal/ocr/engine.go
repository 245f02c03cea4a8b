package ocr

import (
	"context"
	"encoding/json"
	"time"
)

// Engine names. These are stable identifiers persisted with every OCRResult
// row. Confidence ties are broken by invocation order: SelectBest keeps the
// first of equals, and the router invokes engines in routing-list order.
const (
	EngineRapidOCR  = "rapidocr"
	EngineTesseract = "tesseract"
	EnginePaddleOCR = "paddleocr"
)

// BoundingBox locates one recognized token on the page image.
type BoundingBox struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Text   string `json:"text"`
}

// Candidate is the output of one engine invocation. Confidence is normalized
// to [0,1] before candidates are compared.
type Candidate struct {
	Engine     string        `json:"engine"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Boxes      []BoundingBox `json:"bounding_boxes,omitempty"`
	Elapsed    time.Duration `json:"processing_time"`
}

// Engine is one OCR backend capable of producing text + confidence from an
// image. A disabled engine must return the zero-confidence placeholder from
// Run rather than an error, so it is never selected unless it is the only
// candidate.
type Engine interface {
	Name() string
	Run(ctx context.Context, imagePath string) (Candidate, error)
}

// Placeholder is the candidate a disabled or unavailable engine contributes.
func Placeholder(engine string) Candidate {
	return Candidate{Engine: engine, Confidence: 0}
}

// MarshalBoxes renders bounding boxes as the JSON persisted with an
// OCRResult. Nil boxes become an empty array, never null.
func MarshalBoxes(boxes []BoundingBox) json.RawMessage {
	if len(boxes) == 0 {
		return json.RawMessage("[]")
	}
	b, err := json.Marshal(boxes)
	if err != nil {
		return json.RawMessage("[]")
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
