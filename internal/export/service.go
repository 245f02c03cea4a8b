// Package export renders extracted field values as tabular files keyed by
// schema field labels.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/docufield/docufield/internal/entity"
	"github.com/docufield/docufield/internal/repository"
)

// Service is a tiny façade over repositories that produces CSV or XLSX bytes.
// One row per document bound to the schema; one column per schema field, in
// display order, each cell resolving final ?? normalized ?? extracted ?? "".
type Service struct {
	documents repository.DocumentRepository
	schemas   repository.SchemaRepository
	values    repository.FieldValueRepository
	logger    *slog.Logger
}

func NewService(documents repository.DocumentRepository, schemas repository.SchemaRepository, values repository.FieldValueRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{documents: documents, schemas: schemas, values: values, logger: logger}
}

// fixed leading columns before the per-field ones
var metaHeaders = []string{"Filename", "Status", "Overall Confidence"}

func (s *Service) table(ctx context.Context, schemaID uuid.UUID) ([]string, [][]string, error) {
	fields, err := s.schemas.ListFields(ctx, schemaID)
	if err != nil {
		return nil, nil, fmt.Errorf("list schema fields: %w", err)
	}
	docs, err := s.documents.ListBySchema(ctx, schemaID)
	if err != nil {
		return nil, nil, fmt.Errorf("list documents: %w", err)
	}

	headers := append(append([]string{}, metaHeaders...), labels(fields)...)

	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		values, err := s.values.ListByDocument(ctx, doc.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("list field values: %w", err)
		}
		byField := make(map[string]*entity.FieldValue, len(values))
		for _, v := range values {
			byField[v.FieldName] = v
		}

		row := []string{
			doc.Filename,
			string(doc.Status),
			fmt.Sprintf("%.2f", doc.OverallConfidence),
		}
		for _, f := range fields {
			cell := ""
			if v, ok := byField[f.FieldName]; ok {
				cell = v.ExportValue()
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// ExportCSV returns the schema's documents as CSV bytes.
func (s *Service) ExportCSV(ctx context.Context, schemaID uuid.UUID) ([]byte, error) {
	start := time.Now()
	headers, rows, err := s.table(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	s.logger.Info("export.csv.ok",
		"schema_id", schemaID.String(),
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportXLSX returns the schema's documents as an XLSX workbook.
func (s *Service) ExportXLSX(ctx context.Context, schemaID uuid.UUID) ([]byte, error) {
	start := time.Now()
	headers, rows, err := s.table(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Documents"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for i, h := range headers {
		write(i+1, 1, h)
	}
	for ri, row := range rows {
		for ci, v := range row {
			write(ci+1, ri+2, v)
		}
	}

	// Widen the filename column; field columns keep the default.
	_ = f.SetColWidth(sheet, "A", "A", 36)
	_ = f.SetColWidth(sheet, "B", "C", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"schema_id", schemaID.String(),
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func labels(fields []entity.SchemaField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.FieldLabel
	}
	return out
}
