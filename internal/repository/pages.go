package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/entity"
)

type PageRepository interface {
	// Upsert records a page and its quality score. Re-processing a document
	// reuses the existing row; the quality score is refreshed because the
	// source file may have changed between runs.
	Upsert(ctx context.Context, documentID uuid.UUID, pageNumber int, imagePath string, qualityScore float64) (*entity.Page, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Page, error)
}

type pageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPageRepository(db *sql.DB, logger *slog.Logger) PageRepository {
	return &pageRepository{db: db, logger: logger}
}

func (r *pageRepository) Upsert(ctx context.Context, documentID uuid.UUID, pageNumber int, imagePath string, qualityScore float64) (*entity.Page, error) {
	var (
		idStr     string
		createdAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM pages WHERE document_id = $1 AND page_number = $2`,
		documentID.String(), pageNumber).Scan(&idStr, &createdAt)
	switch {
	case err == nil:
		_, err = r.db.ExecContext(ctx,
			`UPDATE pages SET image_path = $1, quality_score = $2 WHERE id = $3`,
			imagePath, qualityScore, idStr)
		if err != nil {
			return nil, common.WrapError(err, "update page")
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		return &entity.Page{
			ID: id, DocumentID: documentID, PageNumber: pageNumber,
			ImagePath: imagePath, QualityScore: qualityScore, CreatedAt: createdAt,
		}, nil
	case err == sql.ErrNoRows:
		page := &entity.Page{
			ID:           uuid.New(),
			DocumentID:   documentID,
			PageNumber:   pageNumber,
			ImagePath:    imagePath,
			QualityScore: qualityScore,
			CreatedAt:    time.Now().UTC(),
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO pages (id, document_id, page_number, image_path, quality_score, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			page.ID.String(), documentID.String(), pageNumber, imagePath, qualityScore, page.CreatedAt)
		if err != nil {
			r.logger.Error("failed to create page", "document_id", documentID, "error", err)
			return nil, common.WrapError(err, "create page")
		}
		return page, nil
	default:
		return nil, common.WrapError(err, "lookup page")
	}
}

func (r *pageRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Page, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, page_number, image_path, quality_score, created_at
		FROM pages WHERE document_id = $1 ORDER BY page_number`,
		documentID.String())
	if err != nil {
		return nil, common.WrapError(err, "list pages")
	}
	defer func() { _ = rows.Close() }()

	var pages []*entity.Page
	for rows.Next() {
		var (
			p           entity.Page
			idStr, dStr string
		)
		if err := rows.Scan(&idStr, &dStr, &p.PageNumber, &p.ImagePath, &p.QualityScore, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if p.DocumentID, err = uuid.Parse(dStr); err != nil {
			return nil, err
		}
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}
