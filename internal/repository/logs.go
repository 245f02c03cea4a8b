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

// LogRepository is the append-only pipeline audit trail. Append and read only;
// entries are never mutated or deleted.
type LogRepository interface {
	Append(ctx context.Context, documentID uuid.UUID, stage, message, level string) (*entity.ProcessingLogEntry, error)
	Latest(ctx context.Context, documentID uuid.UUID) (*entity.ProcessingLogEntry, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ProcessingLogEntry, error)
}

type logRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewLogRepository(db *sql.DB, logger *slog.Logger) LogRepository {
	return &logRepository{db: db, logger: logger}
}

func (r *logRepository) Append(ctx context.Context, documentID uuid.UUID, stage, message, level string) (*entity.ProcessingLogEntry, error) {
	entry := &entity.ProcessingLogEntry{
		ID:         uuid.New(),
		DocumentID: documentID,
		Stage:      stage,
		Message:    message,
		Level:      level,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_logs (id, document_id, stage, message, level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID.String(), documentID.String(), stage, message, level, entry.CreatedAt)
	if err != nil {
		r.logger.Error("failed to append processing log", "document_id", documentID, "stage", stage, "error", err)
		return nil, common.WrapError(err, "append processing log")
	}
	return entry, nil
}

// Latest returns the most recent entry, or ErrNotFound for an empty log.
func (r *logRepository) Latest(ctx context.Context, documentID uuid.UUID) (*entity.ProcessingLogEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, document_id, stage, message, level, created_at
		FROM processing_logs WHERE document_id = $1
		ORDER BY created_at DESC LIMIT 1`,
		documentID.String())
	entry, err := scanLogEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "latest processing log")
	}
	return entry, nil
}

func (r *logRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ProcessingLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, stage, message, level, created_at
		FROM processing_logs WHERE document_id = $1 ORDER BY created_at, id`,
		documentID.String())
	if err != nil {
		return nil, common.WrapError(err, "list processing logs")
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.ProcessingLogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanLogEntry(row rowScanner) (*entity.ProcessingLogEntry, error) {
	var (
		entry       entity.ProcessingLogEntry
		idStr, dStr string
	)
	err := row.Scan(&idStr, &dStr, &entry.Stage, &entry.Message, &entry.Level, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	if entry.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if entry.DocumentID, err = uuid.Parse(dStr); err != nil {
		return nil, err
	}
	return &entry, nil
}
