// Package pipeline orchestrates one document's journey from uploaded file to
// extracted, validated, review-flagged field values, leaving an append-only
// audit trail behind every stage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/entity"
	"github.com/docufield/docufield/internal/llm"
	"github.com/docufield/docufield/internal/ocr"
	"github.com/docufield/docufield/internal/repository"
	"github.com/docufield/docufield/internal/review"
	"github.com/docufield/docufield/internal/validation"
)

// OCRRouter is the quality-routed OCR entry point the pipeline depends on.
type OCRRouter interface {
	Route(ctx context.Context, path string) (ocr.RouteResult, error)
}

// RunResult is what the single external entry point reports back.
type RunResult struct {
	Status            constants.DocumentStatus
	OverallConfidence float64
	FieldValues       []*entity.FieldValue
}

// Pipeline wires the stages together. One instance serves many documents;
// per-document state lives entirely in the store.
type Pipeline struct {
	docs    repository.DocumentRepository
	pages   repository.PageRepository
	results repository.ResultRepository
	values  repository.FieldValueRepository
	logs    repository.LogRepository
	schemas repository.SchemaRepository

	router    OCRRouter
	extractor llm.FieldExtractor
	fallback  llm.FieldExtractor

	logger *slog.Logger
}

type Deps struct {
	Documents   repository.DocumentRepository
	Pages       repository.PageRepository
	Results     repository.ResultRepository
	FieldValues repository.FieldValueRepository
	Logs        repository.LogRepository
	Schemas     repository.SchemaRepository
	Router      OCRRouter
	Extractor   llm.FieldExtractor
	Logger      *slog.Logger
}

func New(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		docs:      d.Documents,
		pages:     d.Pages,
		results:   d.Results,
		values:    d.FieldValues,
		logs:      d.Logs,
		schemas:   d.Schemas,
		router:    d.Router,
		extractor: d.Extractor,
		fallback:  llm.NewFallback(logger),
		logger:    logger,
	}
}

// Run processes one document end to end. The stage order is fixed:
// processing_start → ocr → (llm → validation, only with a bound schema) →
// completed. Any stage failure records an error log, marks the document
// FAILED and stops; extractor failures are not stage failures, they degrade
// to the fallback result.
//
// The status guard inside MarkProcessing serializes runs per document:
// a second Run while one is in flight returns common.ErrAlreadyActive.
func (p *Pipeline) Run(ctx context.Context, documentID uuid.UUID) (*RunResult, error) {
	doc, err := p.docs.MarkProcessing(ctx, documentID)
	if err != nil {
		return nil, err
	}

	p.logger.Info("pipeline.start", "document_id", doc.ID, "filename", doc.Filename)
	if _, err := p.logs.Append(ctx, doc.ID, constants.StageStart, "Started processing "+doc.Filename, constants.LevelInfo); err != nil {
		return nil, p.fail(ctx, doc.ID, err)
	}

	route, err := p.router.Route(ctx, doc.SourcePath)
	if err != nil {
		return nil, p.fail(ctx, doc.ID, fmt.Errorf("ocr failed: %w", err))
	}
	page, err := p.recordOCR(ctx, doc, route)
	if err != nil {
		return nil, p.fail(ctx, doc.ID, err)
	}

	if doc.SchemaID == nil {
		// No schema bound: OCR confidence is the document confidence and
		// extraction/validation are skipped entirely.
		if err := p.docs.FinishCompleted(ctx, doc.ID, route.Best.Confidence); err != nil {
			return nil, p.fail(ctx, doc.ID, err)
		}
		if _, err := p.logs.Append(ctx, doc.ID, constants.StageCompleted, "Processing completed (no schema bound)", constants.LevelInfo); err != nil {
			return nil, err
		}
		p.logger.Info("pipeline.ok", "document_id", doc.ID, "overall_confidence", route.Best.Confidence)
		return &RunResult{Status: constants.StatusCompleted, OverallConfidence: route.Best.Confidence}, nil
	}

	fields, err := p.schemas.ListFields(ctx, *doc.SchemaID)
	if err != nil {
		return nil, p.fail(ctx, doc.ID, err)
	}

	extraction := p.extract(ctx, route, fields)
	if err := p.recordExtraction(ctx, doc.ID, page.ID, route, extraction); err != nil {
		return nil, p.fail(ctx, doc.ID, err)
	}

	result := validation.Validate(extraction.Values, extraction.Confidences, fields)
	if err := p.recordValidation(ctx, doc.ID, result); err != nil {
		return nil, p.fail(ctx, doc.ID, err)
	}

	fieldValues, err := p.storeFieldValues(ctx, doc.ID, fields, extraction, result)
	if err != nil {
		return nil, p.fail(ctx, doc.ID, err)
	}

	if err := p.docs.FinishCompleted(ctx, doc.ID, extraction.Overall); err != nil {
		return nil, p.fail(ctx, doc.ID, err)
	}
	if _, err := p.logs.Append(ctx, doc.ID, constants.StageCompleted, "Processing completed", constants.LevelInfo); err != nil {
		return nil, err
	}

	p.logger.Info("pipeline.ok",
		"document_id", doc.ID,
		"model", extraction.Model,
		"overall_confidence", extraction.Overall,
		"fields", len(fieldValues),
	)
	return &RunResult{
		Status:            constants.StatusCompleted,
		OverallConfidence: extraction.Overall,
		FieldValues:       fieldValues,
	}, nil
}

// recordOCR persists the page, every candidate and the ocr stage log.
func (p *Pipeline) recordOCR(ctx context.Context, doc *entity.Document, route ocr.RouteResult) (*entity.Page, error) {
	if route.NumPages > 0 && route.NumPages != doc.NumPages {
		if err := p.docs.SetNumPages(ctx, doc.ID, route.NumPages); err != nil {
			return nil, err
		}
	}
	page, err := p.pages.Upsert(ctx, doc.ID, 1, route.ImagePath, route.QualityScore)
	if err != nil {
		return nil, err
	}
	for _, cand := range route.All {
		err := p.results.AddOCRResult(ctx, &entity.OCRResult{
			PageID:         page.ID,
			Engine:         cand.Engine,
			Text:           cand.Text,
			Confidence:     cand.Confidence,
			BoundingBoxes:  ocr.MarshalBoxes(cand.Boxes),
			ProcessingTime: cand.Elapsed,
		})
		if err != nil {
			return nil, err
		}
	}
	msg := fmt.Sprintf("OCR completed with %s (quality %.2f, confidence %.2f)",
		route.Best.Engine, route.QualityScore, route.Best.Confidence)
	if _, err := p.logs.Append(ctx, doc.ID, constants.StageOCR, msg, constants.LevelInfo); err != nil {
		return nil, err
	}
	return page, nil
}

// extract calls the configured extractor and degrades to the fallback on any
// failure so downstream stages always get a well-formed shape.
func (p *Pipeline) extract(ctx context.Context, route ocr.RouteResult, fields []entity.SchemaField) llm.DocumentFields {
	req := llm.ExtractRequest{
		OCRText:       route.Best.Text,
		Fields:        fields,
		OCRConfidence: route.Best.Confidence,
	}
	out, err := p.extractor.ExtractFields(ctx, req)
	if err != nil {
		p.logger.Warn("pipeline.extract.degraded", "error", err)
		out, _ = p.fallback.ExtractFields(ctx, req)
	}
	return out
}

func (p *Pipeline) recordExtraction(ctx context.Context, documentID, pageID uuid.UUID, route ocr.RouteResult, extraction llm.DocumentFields) error {
	input := route.Best.Text
	if len(input) > llm.ExcerptLimit {
		input = input[:llm.ExcerptLimit]
	}
	err := p.results.AddExtractionResult(ctx, &entity.ExtractionResult{
		PageID:         pageID,
		Model:          extraction.Model,
		InputText:      input,
		Output:         extraction.Raw,
		Confidence:     extraction.Overall,
		ProcessingTime: extraction.Elapsed,
	})
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Extraction completed with %s (confidence %.2f)", extraction.Model, extraction.Overall)
	_, err = p.logs.Append(ctx, documentID, constants.StageLLM, msg, constants.LevelInfo)
	return err
}

func (p *Pipeline) recordValidation(ctx context.Context, documentID uuid.UUID, result validation.Result) error {
	level := constants.LevelInfo
	if !result.IsValid {
		level = constants.LevelWarning
	}
	msg := fmt.Sprintf("Validation finished: %d errors, %d warnings", len(result.Errors), len(result.Warnings))
	_, err := p.logs.Append(ctx, documentID, constants.StageValidation, msg, level)
	return err
}

// storeFieldValues writes one row per schema field: raw and normalized value,
// confidence, and the review flag combining confidence with validation errors.
func (p *Pipeline) storeFieldValues(ctx context.Context, documentID uuid.UUID, fields []entity.SchemaField, extraction llm.DocumentFields, result validation.Result) ([]*entity.FieldValue, error) {
	out := make([]*entity.FieldValue, 0, len(fields))
	for _, f := range fields {
		confidence := extraction.Confidences[f.FieldName]
		hasErrors := len(result.Fields[f.FieldName].Errors) > 0

		req := &repository.UpsertFieldValueRequest{
			DocumentID:  documentID,
			FieldID:     f.ID,
			FieldName:   f.FieldName,
			Confidence:  confidence,
			NeedsReview: review.NeedsReview(confidence, hasErrors),
		}
		if raw := validation.ValueString(extraction.Values[f.FieldName]); raw != "" {
			req.ExtractedValue = &raw
			if norm := validation.Normalize(raw, f.FieldType); norm != "" {
				req.NormalizedValue = &norm
			}
		}
		fv, err := p.values.Upsert(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, fv)
	}
	return out, nil
}

// fail records the error stage and marks the document FAILED. The original
// error is returned so callers see the cause, not the bookkeeping.
func (p *Pipeline) fail(ctx context.Context, documentID uuid.UUID, cause error) error {
	p.logger.Error("pipeline.failed", "document_id", documentID, "error", cause)
	if _, err := p.logs.Append(ctx, documentID, constants.StageError, cause.Error(), constants.LevelError); err != nil {
		p.logger.Error("pipeline.fail.log", "document_id", documentID, "error", err)
	}
	if err := p.docs.FinishFailed(ctx, documentID, cause.Error()); err != nil {
		p.logger.Error("pipeline.fail.status", "document_id", documentID, "error", err)
	}
	return cause
}
