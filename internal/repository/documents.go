package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/entity"
)

// CreateDocumentRequest wraps parameters for registering an uploaded file.
type CreateDocumentRequest struct {
	SchemaID    *uuid.UUID
	Filename    string
	SourcePath  string
	ContentHash string
	FileSize    int
}

type DocumentRepository interface {
	Create(ctx context.Context, req *CreateDocumentRequest) (*entity.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	// FindByHash locates an earlier upload of the same content, for
	// ingest-time deduplication. ErrNotFound when the content is new.
	FindByHash(ctx context.Context, contentHash string) (*entity.Document, error)
	ListByStatus(ctx context.Context, status constants.DocumentStatus) ([]*entity.Document, error)
	// ListBySchema returns every document bound to a schema, oldest first,
	// the export layer's row source.
	ListBySchema(ctx context.Context, schemaID uuid.UUID) ([]*entity.Document, error)
	// MarkProcessing transitions a startable document to PROCESSING. It is
	// the per-document serialization point: a document already PROCESSING
	// (or in a human-review status) yields ErrAlreadyActive.
	MarkProcessing(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	SetNumPages(ctx context.Context, id uuid.UUID, numPages int) error
	FinishCompleted(ctx context.Context, id uuid.UUID, overallConfidence float64) error
	FinishFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	// SetReviewStatus applies a human workflow transition, enforcing the
	// allowed COMPLETED/REVIEW → REVIEW/APPROVED/REJECTED moves.
	SetReviewStatus(ctx context.Context, id uuid.UUID, to constants.DocumentStatus) error
}

type documentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDocumentRepository(db *sql.DB, logger *slog.Logger) DocumentRepository {
	return &documentRepository{db: db, logger: logger}
}

const documentColumns = `id, schema_id, filename, source_path, content_hash, file_size, num_pages, status,
	overall_confidence, processing_started_at, processing_completed_at, error_message,
	created_at, updated_at`

func (r *documentRepository) Create(ctx context.Context, req *CreateDocumentRequest) (*entity.Document, error) {
	now := time.Now().UTC()
	doc := &entity.Document{
		ID:          uuid.New(),
		SchemaID:    req.SchemaID,
		Filename:    req.Filename,
		SourcePath:  req.SourcePath,
		ContentHash: req.ContentHash,
		FileSize:    req.FileSize,
		Status:      constants.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var schemaID any
	if doc.SchemaID != nil {
		schemaID = doc.SchemaID.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, schema_id, filename, source_path, content_hash, file_size, num_pages, status, overall_confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, 0, $8, $9)`,
		doc.ID.String(), schemaID, doc.Filename, doc.SourcePath, doc.ContentHash, doc.FileSize,
		string(doc.Status), now, now,
	)
	if err != nil {
		r.logger.Error("failed to create document", "filename", req.Filename, "error", err)
		return nil, common.WrapError(err, "create document")
	}
	return doc, nil
}

func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id.String())
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get document")
	}
	return doc, nil
}

func (r *documentRepository) FindByHash(ctx context.Context, contentHash string) (*entity.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = $1 ORDER BY created_at LIMIT 1`,
		contentHash)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "find document by hash")
	}
	return doc, nil
}

func (r *documentRepository) ListByStatus(ctx context.Context, status constants.DocumentStatus) ([]*entity.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, common.WrapError(err, "list documents")
	}
	defer func() { _ = rows.Close() }()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *documentRepository) ListBySchema(ctx context.Context, schemaID uuid.UUID) ([]*entity.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE schema_id = $1 ORDER BY created_at`, schemaID.String())
	if err != nil {
		return nil, common.WrapError(err, "list documents by schema")
	}
	defer func() { _ = rows.Close() }()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *documentRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $1, processing_started_at = $2, processing_completed_at = NULL,
		    error_message = NULL, updated_at = $3
		WHERE id = $4 AND status IN ($5, $6, $7)`,
		string(constants.StatusProcessing), now, now, id.String(),
		string(constants.StatusUploaded), string(constants.StatusCompleted), string(constants.StatusFailed),
	)
	if err != nil {
		return nil, common.WrapError(err, "mark processing")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either the document does not exist or it is not startable.
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, common.ErrAlreadyActive
	}
	return r.GetByID(ctx, id)
}

func (r *documentRepository) SetNumPages(ctx context.Context, id uuid.UUID, numPages int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET num_pages = $1, updated_at = $2 WHERE id = $3`,
		numPages, time.Now().UTC(), id.String())
	return common.WrapError(err, "set num pages")
}

func (r *documentRepository) FinishCompleted(ctx context.Context, id uuid.UUID, overallConfidence float64) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $1, overall_confidence = $2, processing_completed_at = $3, updated_at = $4
		WHERE id = $5`,
		string(constants.StatusCompleted), overallConfidence, now, now, id.String())
	return common.WrapError(err, "finish completed")
}

func (r *documentRepository) FinishFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $1, error_message = $2, processing_completed_at = $3, updated_at = $4
		WHERE id = $5`,
		string(constants.StatusFailed), errMsg, now, now, id.String())
	return common.WrapError(err, "finish failed")
}

func (r *documentRepository) SetReviewStatus(ctx context.Context, id uuid.UUID, to constants.DocumentStatus) error {
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !constants.ReviewTransition(doc.Status, to) {
		return common.NewAppError("INVALID_TRANSITION",
			"cannot move document from "+string(doc.Status)+" to "+string(to), common.ErrInvalidInput)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`,
		string(to), time.Now().UTC(), id.String())
	return common.WrapError(err, "set review status")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var (
		doc        entity.Document
		idStr      string
		schemaID   sql.NullString
		status     string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		errMsg     sql.NullString
	)
	err := row.Scan(&idStr, &schemaID, &doc.Filename, &doc.SourcePath, &doc.ContentHash,
		&doc.FileSize, &doc.NumPages, &status, &doc.OverallConfidence, &startedAt, &finishedAt,
		&errMsg, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	if schemaID.Valid {
		sid, err := uuid.Parse(schemaID.String)
		if err != nil {
			return nil, err
		}
		doc.SchemaID = &sid
	}
	doc.Status = constants.DocumentStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		doc.ProcessingStarted = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		doc.ProcessingFinished = &t
	}
	if errMsg.Valid {
		s := errMsg.String
		doc.ErrorMessage = &s
	}
	return &doc, nil
}
