package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/entity"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(context.Background(), sqlDB, slog.Default()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlDB
}

func createDocument(t *testing.T, repo DocumentRepository, schemaID *uuid.UUID) *entity.Document {
	t.Helper()
	doc, err := repo.Create(context.Background(), &CreateDocumentRequest{
		SchemaID:   schemaID,
		Filename:   "invoice.pdf",
		SourcePath: "/data/in/invoice.pdf",
		FileSize:   2048,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)
	repo := NewDocumentRepository(sqlDB, slog.Default())

	doc := createDocument(t, repo, nil)
	if doc.Status != constants.StatusUploaded {
		t.Fatalf("new document status = %s", doc.Status)
	}

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Filename != "invoice.pdf" || got.FileSize != 2048 {
			t.Fatalf("round trip mismatch: %+v", got)
		}
	})

	t.Run("missing document", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, common.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("mark processing guards concurrency", func(t *testing.T) {
		got, err := repo.MarkProcessing(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != constants.StatusProcessing || got.ProcessingStarted == nil {
			t.Fatalf("after mark: %+v", got)
		}
		if _, err := repo.MarkProcessing(ctx, doc.ID); !errors.Is(err, common.ErrAlreadyActive) {
			t.Fatalf("second mark err = %v, want ErrAlreadyActive", err)
		}
	})

	t.Run("finish completed", func(t *testing.T) {
		if err := repo.FinishCompleted(ctx, doc.ID, 0.92); err != nil {
			t.Fatal(err)
		}
		got, err := repo.GetByID(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != constants.StatusCompleted || got.OverallConfidence != 0.92 || got.ProcessingFinished == nil {
			t.Fatalf("after finish: %+v", got)
		}
	})

	t.Run("completed documents are retry eligible", func(t *testing.T) {
		got, err := repo.MarkProcessing(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.ErrorMessage != nil || got.ProcessingFinished != nil {
			t.Fatalf("retry did not reset fields: %+v", got)
		}
	})

	t.Run("finish failed records message", func(t *testing.T) {
		if err := repo.FinishFailed(ctx, doc.ID, "all OCR engines failed"); err != nil {
			t.Fatal(err)
		}
		got, err := repo.GetByID(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != constants.StatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != "all OCR engines failed" {
			t.Fatalf("after failure: %+v", got)
		}
	})

	t.Run("review transitions", func(t *testing.T) {
		if err := repo.SetReviewStatus(ctx, doc.ID, constants.StatusReview); err == nil {
			t.Fatal("FAILED document must not enter review")
		}
		if err := repo.FinishCompleted(ctx, doc.ID, 0.5); err != nil {
			t.Fatal(err)
		}
		if err := repo.SetReviewStatus(ctx, doc.ID, constants.StatusReview); err != nil {
			t.Fatal(err)
		}
		if err := repo.SetReviewStatus(ctx, doc.ID, constants.StatusApproved); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("list by status", func(t *testing.T) {
		docs, err := repo.ListByStatus(ctx, constants.StatusApproved)
		if err != nil {
			t.Fatal(err)
		}
		if len(docs) != 1 || docs[0].ID != doc.ID {
			t.Fatalf("list = %+v", docs)
		}
	})
}

func TestSchemaFieldsRoundTrip(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)
	repo := NewSchemaRepository(sqlDB, slog.Default())

	schema, err := repo.CreateSchema(ctx, "invoices", "inbound invoice fields")
	if err != nil {
		t.Fatal(err)
	}

	for i, req := range []*CreateFieldRequest{
		{FieldName: "total", FieldLabel: "Total", FieldType: constants.FieldNumber, IsRequired: true, DisplayOrder: 2},
		{FieldName: "status", FieldLabel: "Status", FieldType: constants.FieldDropdown, DropdownOptions: []string{"open", "paid"}, DisplayOrder: 1},
	} {
		if _, err := repo.AddField(ctx, schema.ID, req); err != nil {
			t.Fatalf("add field %d: %v", i, err)
		}
	}

	fields, err := repo.ListFields(ctx, schema.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 {
		t.Fatalf("fields = %d", len(fields))
	}
	if fields[0].FieldName != "status" {
		t.Fatalf("display order not honored: %s first", fields[0].FieldName)
	}
	if len(fields[0].DropdownOptions) != 2 || fields[0].DropdownOptions[1] != "paid" {
		t.Fatalf("dropdown options = %v", fields[0].DropdownOptions)
	}
	if !fields[1].IsRequired || fields[1].FieldType != constants.FieldNumber {
		t.Fatalf("field attrs lost: %+v", fields[1])
	}
}

func TestPagesAndResults(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)
	docs := NewDocumentRepository(sqlDB, slog.Default())
	pages := NewPageRepository(sqlDB, slog.Default())
	results := NewResultRepository(sqlDB, slog.Default())

	doc := createDocument(t, docs, nil)

	page, err := pages.Upsert(ctx, doc.ID, 1, "/tmp/p1.png", 0.73)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("upsert reuses the row", func(t *testing.T) {
		again, err := pages.Upsert(ctx, doc.ID, 1, "/tmp/p1-v2.png", 0.81)
		if err != nil {
			t.Fatal(err)
		}
		if again.ID != page.ID {
			t.Fatalf("new row created on upsert: %s vs %s", again.ID, page.ID)
		}
		listed, err := pages.ListByDocument(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(listed) != 1 || listed[0].QualityScore != 0.81 {
			t.Fatalf("pages = %+v", listed)
		}
	})

	t.Run("ocr results are append only", func(t *testing.T) {
		boxes, _ := json.Marshal([]map[string]any{{"x": 1, "y": 2, "width": 10, "height": 12}})
		for _, res := range []*entity.OCRResult{
			{PageID: page.ID, Engine: "tesseract", Text: "Invoice", Confidence: 0.9, BoundingBoxes: boxes, ProcessingTime: 120 * time.Millisecond},
			{PageID: page.ID, Engine: "rapidocr", Text: "lnvoice", Confidence: 0.7},
		} {
			if err := results.AddOCRResult(ctx, res); err != nil {
				t.Fatal(err)
			}
		}
		listed, err := results.ListOCRResults(ctx, page.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(listed) != 2 {
			t.Fatalf("results = %d", len(listed))
		}
		if listed[0].ProcessingTime != 120*time.Millisecond {
			t.Fatalf("elapsed = %v", listed[0].ProcessingTime)
		}
		var decoded []map[string]any
		if err := json.Unmarshal(listed[0].BoundingBoxes, &decoded); err != nil || len(decoded) != 1 {
			t.Fatalf("boxes = %s (%v)", listed[0].BoundingBoxes, err)
		}
	})

	t.Run("extraction result round trip", func(t *testing.T) {
		err := results.AddExtractionResult(ctx, &entity.ExtractionResult{
			PageID:     page.ID,
			Model:      "gpt-4o-mini",
			InputText:  "Invoice Total 42.50",
			Output:     json.RawMessage(`{"total":"42.50","total_confidence":0.9}`),
			Confidence: 0.9,
		})
		if err != nil {
			t.Fatal(err)
		}
		listed, err := results.ListExtractionResults(ctx, page.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(listed) != 1 || listed[0].Model != "gpt-4o-mini" {
			t.Fatalf("results = %+v", listed)
		}
	})
}

func TestFieldValues(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)
	docs := NewDocumentRepository(sqlDB, slog.Default())
	schemas := NewSchemaRepository(sqlDB, slog.Default())
	values := NewFieldValueRepository(sqlDB, slog.Default())

	schema, err := schemas.CreateSchema(ctx, "invoices", "")
	if err != nil {
		t.Fatal(err)
	}
	fld, err := schemas.AddField(ctx, schema.ID, &CreateFieldRequest{
		FieldName: "total", FieldLabel: "Total", FieldType: constants.FieldNumber, IsRequired: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	doc := createDocument(t, docs, &schema.ID)

	extracted := "$1,234.56"
	normalized := "1234.56"
	fv, err := values.Upsert(ctx, &UpsertFieldValueRequest{
		DocumentID:      doc.ID,
		FieldID:         fld.ID,
		FieldName:       "total",
		ExtractedValue:  &extracted,
		NormalizedValue: &normalized,
		Confidence:      0.65,
		NeedsReview:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !fv.NeedsReview || fv.Confidence != 0.65 {
		t.Fatalf("field value = %+v", fv)
	}
	if fv.ExportValue() != "1234.56" {
		t.Fatalf("ExportValue = %q, want normalized", fv.ExportValue())
	}

	t.Run("review override wins the export chain", func(t *testing.T) {
		if err := values.ApplyReview(ctx, doc.ID, fld.ID, "1234.57", "reviewer@example.com"); err != nil {
			t.Fatal(err)
		}
		listed, err := values.ListByDocument(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(listed) != 1 {
			t.Fatalf("values = %d", len(listed))
		}
		got := listed[0]
		if got.NeedsReview {
			t.Fatal("review did not clear the flag")
		}
		if got.ReviewedBy == nil || *got.ReviewedBy != "reviewer@example.com" || got.ReviewedAt == nil {
			t.Fatalf("review metadata = %+v", got)
		}
		if got.ExportValue() != "1234.57" {
			t.Fatalf("ExportValue = %q, want final value", got.ExportValue())
		}
	})

	t.Run("reprocessing clears stale review", func(t *testing.T) {
		v := "9.99"
		fv, err := values.Upsert(ctx, &UpsertFieldValueRequest{
			DocumentID:     doc.ID,
			FieldID:        fld.ID,
			FieldName:      "total",
			ExtractedValue: &v,
			Confidence:     0.95,
		})
		if err != nil {
			t.Fatal(err)
		}
		if fv.FinalValue != nil || fv.ReviewedBy != nil {
			t.Fatalf("stale review survived: %+v", fv)
		}
		if fv.ExportValue() != "9.99" {
			t.Fatalf("ExportValue = %q", fv.ExportValue())
		}
	})

	t.Run("review of unknown field", func(t *testing.T) {
		if err := values.ApplyReview(ctx, doc.ID, uuid.New(), "x", "r"); !errors.Is(err, common.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestProcessingLogs(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)
	docs := NewDocumentRepository(sqlDB, slog.Default())
	logs := NewLogRepository(sqlDB, slog.Default())

	doc := createDocument(t, docs, nil)

	if _, err := logs.Latest(ctx, doc.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("empty log err = %v, want ErrNotFound", err)
	}

	for _, stage := range []string{constants.StageStart, constants.StageOCR, constants.StageCompleted} {
		if _, err := logs.Append(ctx, doc.ID, stage, "msg "+stage, constants.LevelInfo); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	latest, err := logs.Latest(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Stage != constants.StageCompleted {
		t.Fatalf("latest stage = %s", latest.Stage)
	}

	all, err := logs.ListByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Stage != constants.StageStart {
		t.Fatalf("log order = %+v", all)
	}
}
