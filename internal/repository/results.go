package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/entity"
)

// ResultRepository persists the append-only audit rows for OCR and extraction
// invocations. Rows are inserted and listed, never updated.
type ResultRepository interface {
	AddOCRResult(ctx context.Context, res *entity.OCRResult) error
	ListOCRResults(ctx context.Context, pageID uuid.UUID) ([]*entity.OCRResult, error)
	AddExtractionResult(ctx context.Context, res *entity.ExtractionResult) error
	ListExtractionResults(ctx context.Context, pageID uuid.UUID) ([]*entity.ExtractionResult, error)
}

type resultRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewResultRepository(db *sql.DB, logger *slog.Logger) ResultRepository {
	return &resultRepository{db: db, logger: logger}
}

func (r *resultRepository) AddOCRResult(ctx context.Context, res *entity.OCRResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	boxes := res.BoundingBoxes
	if len(boxes) == 0 {
		boxes = json.RawMessage("[]")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ocr_results (id, page_id, engine, text, confidence, bounding_boxes, processing_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID.String(), res.PageID.String(), res.Engine, res.Text, res.Confidence,
		string(boxes), res.ProcessingTime.Milliseconds(), res.CreatedAt)
	if err != nil {
		r.logger.Error("failed to record ocr result", "page_id", res.PageID, "engine", res.Engine, "error", err)
		return common.WrapError(err, "add ocr result")
	}
	return nil
}

func (r *resultRepository) ListOCRResults(ctx context.Context, pageID uuid.UUID) ([]*entity.OCRResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, page_id, engine, text, confidence, bounding_boxes, processing_time_ms, created_at
		FROM ocr_results WHERE page_id = $1 ORDER BY created_at, id`,
		pageID.String())
	if err != nil {
		return nil, common.WrapError(err, "list ocr results")
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.OCRResult
	for rows.Next() {
		var (
			res         entity.OCRResult
			idStr, pStr string
			boxes       string
			elapsedMS   int64
		)
		if err := rows.Scan(&idStr, &pStr, &res.Engine, &res.Text, &res.Confidence, &boxes, &elapsedMS, &res.CreatedAt); err != nil {
			return nil, err
		}
		if res.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if res.PageID, err = uuid.Parse(pStr); err != nil {
			return nil, err
		}
		res.BoundingBoxes = json.RawMessage(boxes)
		res.ProcessingTime = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, &res)
	}
	return out, rows.Err()
}

func (r *resultRepository) AddExtractionResult(ctx context.Context, res *entity.ExtractionResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	output := res.Output
	if len(output) == 0 {
		output = json.RawMessage("{}")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO extraction_results (id, page_id, model, input_text, output, confidence, processing_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID.String(), res.PageID.String(), res.Model, res.InputText, string(output),
		res.Confidence, res.ProcessingTime.Milliseconds(), res.CreatedAt)
	if err != nil {
		r.logger.Error("failed to record extraction result", "page_id", res.PageID, "model", res.Model, "error", err)
		return common.WrapError(err, "add extraction result")
	}
	return nil
}

func (r *resultRepository) ListExtractionResults(ctx context.Context, pageID uuid.UUID) ([]*entity.ExtractionResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, page_id, model, input_text, output, confidence, processing_time_ms, created_at
		FROM extraction_results WHERE page_id = $1 ORDER BY created_at, id`,
		pageID.String())
	if err != nil {
		return nil, common.WrapError(err, "list extraction results")
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.ExtractionResult
	for rows.Next() {
		var (
			res         entity.ExtractionResult
			idStr, pStr string
			output      string
			elapsedMS   int64
		)
		if err := rows.Scan(&idStr, &pStr, &res.Model, &res.InputText, &output, &res.Confidence, &elapsedMS, &res.CreatedAt); err != nil {
			return nil, err
		}
		if res.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if res.PageID, err = uuid.Parse(pStr); err != nil {
			return nil, err
		}
		res.Output = json.RawMessage(output)
		res.ProcessingTime = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, &res)
	}
	return out, rows.Err()
}
