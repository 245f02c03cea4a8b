package llm

import (
	"context"
	"encoding/json"
	"log/slog"
)

// FallbackModel is the model identifier recorded when extraction degraded.
const FallbackModel = "fallback"

// Fallback is the deterministic placeholder extractor chosen when the real
// model is unreachable or returned unusable output. Every field comes back
// null with zero confidence, so required-field validation and review flagging
// still fire downstream. It never fails.
type Fallback struct {
	logger *slog.Logger
}

func NewFallback(logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{logger: logger}
}

func (f *Fallback) ExtractFields(_ context.Context, req ExtractRequest) (DocumentFields, error) {
	values := make(map[string]any, len(req.Fields))
	confidences := make(map[string]float64, len(req.Fields))
	obj := make(map[string]any, len(req.Fields)*2)
	for _, fd := range req.Fields {
		values[fd.FieldName] = nil
		confidences[fd.FieldName] = 0.0
		obj[fd.FieldName] = nil
		obj[fd.FieldName+"_confidence"] = 0.0
	}
	raw, _ := json.Marshal(obj)

	f.logger.Warn("llm.extract.fallback", "fields", len(req.Fields))
	return DocumentFields{
		Model:       FallbackModel,
		Values:      values,
		Confidences: confidences,
		Overall:     0.0,
		Raw:         raw,
	}, nil
}
