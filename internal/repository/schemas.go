package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/entity"
)

// CreateFieldRequest declares one field of a schema.
type CreateFieldRequest struct {
	FieldName       string
	FieldLabel      string
	FieldType       constants.FieldType
	IsRequired      bool
	RegexValidation string
	DropdownOptions []string
	DisplayOrder    int
}

type SchemaRepository interface {
	CreateSchema(ctx context.Context, name, description string) (*entity.Schema, error)
	GetSchema(ctx context.Context, id uuid.UUID) (*entity.Schema, error)
	AddField(ctx context.Context, schemaID uuid.UUID, req *CreateFieldRequest) (*entity.SchemaField, error)
	// ListFields returns a schema's fields in display order, the shape the
	// extractor and validator consume.
	ListFields(ctx context.Context, schemaID uuid.UUID) ([]entity.SchemaField, error)
}

type schemaRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSchemaRepository(db *sql.DB, logger *slog.Logger) SchemaRepository {
	return &schemaRepository{db: db, logger: logger}
}

func (r *schemaRepository) CreateSchema(ctx context.Context, name, description string) (*entity.Schema, error) {
	s := &entity.Schema{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO schemas (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		s.ID.String(), s.Name, s.Description, s.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create schema", "name", name, "error", err)
		return nil, common.WrapError(err, "create schema")
	}
	return s, nil
}

func (r *schemaRepository) GetSchema(ctx context.Context, id uuid.UUID) (*entity.Schema, error) {
	var (
		s     entity.Schema
		idStr string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM schemas WHERE id = $1`,
		id.String()).Scan(&idStr, &s.Name, &s.Description, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get schema")
	}
	if s.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *schemaRepository) AddField(ctx context.Context, schemaID uuid.UUID, req *CreateFieldRequest) (*entity.SchemaField, error) {
	f := &entity.SchemaField{
		ID:              uuid.New(),
		SchemaID:        schemaID,
		FieldName:       req.FieldName,
		FieldLabel:      req.FieldLabel,
		FieldType:       req.FieldType,
		IsRequired:      req.IsRequired,
		RegexValidation: req.RegexValidation,
		DropdownOptions: req.DropdownOptions,
		DisplayOrder:    req.DisplayOrder,
	}
	opts, err := json.Marshal(f.DropdownOptions)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schema_fields (id, schema_id, field_name, field_label, field_type, is_required, regex_validation, dropdown_options, display_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID.String(), schemaID.String(), f.FieldName, f.FieldLabel, string(f.FieldType),
		f.IsRequired, f.RegexValidation, string(opts), f.DisplayOrder)
	if err != nil {
		r.logger.Error("failed to add schema field", "schema_id", schemaID, "field", req.FieldName, "error", err)
		return nil, common.WrapError(err, "add schema field")
	}
	return f, nil
}

func (r *schemaRepository) ListFields(ctx context.Context, schemaID uuid.UUID) ([]entity.SchemaField, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, schema_id, field_name, field_label, field_type, is_required, regex_validation, dropdown_options, display_order
		FROM schema_fields WHERE schema_id = $1 ORDER BY display_order, field_name`,
		schemaID.String())
	if err != nil {
		return nil, common.WrapError(err, "list schema fields")
	}
	defer func() { _ = rows.Close() }()

	var fields []entity.SchemaField
	for rows.Next() {
		var (
			f           entity.SchemaField
			idStr, sStr string
			ftype, opts string
		)
		if err := rows.Scan(&idStr, &sStr, &f.FieldName, &f.FieldLabel, &ftype, &f.IsRequired, &f.RegexValidation, &opts, &f.DisplayOrder); err != nil {
			return nil, err
		}
		if f.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if f.SchemaID, err = uuid.Parse(sStr); err != nil {
			return nil, err
		}
		f.FieldType = constants.FieldType(ftype)
		if opts != "" {
			if err := json.Unmarshal([]byte(opts), &f.DropdownOptions); err != nil {
				return nil, err
			}
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}
