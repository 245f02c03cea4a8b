package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/entity"
)

// UpsertFieldValueRequest carries one extraction outcome for one schema field.
type UpsertFieldValueRequest struct {
	DocumentID      uuid.UUID
	FieldID         uuid.UUID
	FieldName       string
	ExtractedValue  *string
	NormalizedValue *string
	Confidence      float64
	NeedsReview     bool
}

type FieldValueRepository interface {
	// Upsert writes the pipeline's outcome for one (document, field) pair.
	// Re-processing overwrites the extracted/normalized values and clears any
	// earlier human override, since the prior review judged a stale value.
	Upsert(ctx context.Context, req *UpsertFieldValueRequest) (*entity.FieldValue, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.FieldValue, error)
	// ApplyReview records a human's final value for one field and clears its
	// needs_review flag.
	ApplyReview(ctx context.Context, documentID, fieldID uuid.UUID, finalValue, reviewedBy string) error
}

type fieldValueRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFieldValueRepository(db *sql.DB, logger *slog.Logger) FieldValueRepository {
	return &fieldValueRepository{db: db, logger: logger}
}

func (r *fieldValueRepository) Upsert(ctx context.Context, req *UpsertFieldValueRequest) (*entity.FieldValue, error) {
	now := time.Now().UTC()

	var existingID string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM field_values WHERE document_id = $1 AND field_id = $2`,
		req.DocumentID.String(), req.FieldID.String()).Scan(&existingID)
	switch {
	case err == nil:
		_, err = r.db.ExecContext(ctx, `
			UPDATE field_values
			SET extracted_value = $1, normalized_value = $2, final_value = NULL,
			    confidence_score = $3, needs_review = $4,
			    reviewed_by = NULL, reviewed_at = NULL, updated_at = $5
			WHERE id = $6`,
			nullable(req.ExtractedValue), nullable(req.NormalizedValue),
			req.Confidence, req.NeedsReview, now, existingID)
		if err != nil {
			return nil, common.WrapError(err, "update field value")
		}
	case errors.Is(err, sql.ErrNoRows):
		existingID = uuid.New().String()
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO field_values (id, document_id, field_id, field_name, extracted_value, normalized_value, confidence_score, needs_review, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			existingID, req.DocumentID.String(), req.FieldID.String(), req.FieldName,
			nullable(req.ExtractedValue), nullable(req.NormalizedValue),
			req.Confidence, req.NeedsReview, now, now)
		if err != nil {
			r.logger.Error("failed to create field value", "document_id", req.DocumentID, "field", req.FieldName, "error", err)
			return nil, common.WrapError(err, "create field value")
		}
	default:
		return nil, common.WrapError(err, "lookup field value")
	}

	id, err := uuid.Parse(existingID)
	if err != nil {
		return nil, err
	}
	return r.getByID(ctx, id)
}

func (r *fieldValueRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.FieldValue, error) {
	rows, err := r.db.QueryContext(ctx, fieldValueSelect+`
		WHERE fv.document_id = $1
		ORDER BY fv.field_name`,
		documentID.String())
	if err != nil {
		return nil, common.WrapError(err, "list field values")
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.FieldValue
	for rows.Next() {
		fv, err := scanFieldValue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fv)
	}
	return out, rows.Err()
}

func (r *fieldValueRepository) ApplyReview(ctx context.Context, documentID, fieldID uuid.UUID, finalValue, reviewedBy string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE field_values
		SET final_value = $1, needs_review = FALSE, reviewed_by = $2, reviewed_at = $3, updated_at = $4
		WHERE document_id = $5 AND field_id = $6`,
		finalValue, reviewedBy, time.Now().UTC(), time.Now().UTC(),
		documentID.String(), fieldID.String())
	if err != nil {
		return common.WrapError(err, "apply review")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

const fieldValueSelect = `
	SELECT fv.id, fv.document_id, fv.field_id, fv.field_name,
	       fv.extracted_value, fv.normalized_value, fv.final_value,
	       fv.confidence_score, fv.needs_review, fv.reviewed_by, fv.reviewed_at,
	       fv.created_at, fv.updated_at
	FROM field_values fv`

func (r *fieldValueRepository) getByID(ctx context.Context, id uuid.UUID) (*entity.FieldValue, error) {
	row := r.db.QueryRowContext(ctx, fieldValueSelect+` WHERE fv.id = $1`, id.String())
	fv, err := scanFieldValue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get field value")
	}
	return fv, nil
}

func scanFieldValue(row rowScanner) (*entity.FieldValue, error) {
	var (
		fv                  entity.FieldValue
		idStr, dStr, fStr   string
		extracted, normal   sql.NullString
		final, reviewedBy   sql.NullString
		reviewedAt          sql.NullTime
	)
	err := row.Scan(&idStr, &dStr, &fStr, &fv.FieldName,
		&extracted, &normal, &final, &fv.Confidence, &fv.NeedsReview,
		&reviewedBy, &reviewedAt, &fv.CreatedAt, &fv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if fv.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if fv.DocumentID, err = uuid.Parse(dStr); err != nil {
		return nil, err
	}
	if fv.FieldID, err = uuid.Parse(fStr); err != nil {
		return nil, err
	}
	fv.ExtractedValue = fromNull(extracted)
	fv.NormalizedValue = fromNull(normal)
	fv.FinalValue = fromNull(final)
	fv.ReviewedBy = fromNull(reviewedBy)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		fv.ReviewedAt = &t
	}
	return &fv, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
