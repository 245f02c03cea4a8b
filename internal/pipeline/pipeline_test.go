package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/llm"
	"github.com/docufield/docufield/internal/ocr"
	"github.com/docufield/docufield/internal/repository"
)

type fakeRouter struct {
	result ocr.RouteResult
	err    error
}

func (f *fakeRouter) Route(ctx context.Context, path string) (ocr.RouteResult, error) {
	return f.result, f.err
}

type stubExtractor struct {
	out llm.DocumentFields
	err error
}

func (s *stubExtractor) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.DocumentFields, error) {
	return s.out, s.err
}

type harness struct {
	pipeline *Pipeline
	docs     repository.DocumentRepository
	values   repository.FieldValueRepository
	results  repository.ResultRepository
	logs     repository.LogRepository
	schemas  repository.SchemaRepository
	pages    repository.PageRepository
}

func newHarness(t *testing.T, router OCRRouter, extractor llm.FieldExtractor) *harness {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repository.Migrate(context.Background(), sqlDB, slog.Default()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.Default()
	h := &harness{
		docs:    repository.NewDocumentRepository(sqlDB, logger),
		pages:   repository.NewPageRepository(sqlDB, logger),
		results: repository.NewResultRepository(sqlDB, logger),
		values:  repository.NewFieldValueRepository(sqlDB, logger),
		logs:    repository.NewLogRepository(sqlDB, logger),
		schemas: repository.NewSchemaRepository(sqlDB, logger),
	}
	h.pipeline = New(Deps{
		Documents:   h.docs,
		Pages:       h.pages,
		Results:     h.results,
		FieldValues: h.values,
		Logs:        h.logs,
		Schemas:     h.schemas,
		Router:      router,
		Extractor:   extractor,
		Logger:      logger,
	})
	return h
}

func (h *harness) newDocument(t *testing.T, schemaID *uuid.UUID) uuid.UUID {
	t.Helper()
	doc, err := h.docs.Create(context.Background(), &repository.CreateDocumentRequest{
		SchemaID:   schemaID,
		Filename:   "scan.png",
		SourcePath: "/data/in/scan.png",
		FileSize:   1024,
	})
	if err != nil {
		t.Fatal(err)
	}
	return doc.ID
}

func (h *harness) emailSchema(t *testing.T) *uuid.UUID {
	t.Helper()
	schema, err := h.schemas.CreateSchema(context.Background(), "contacts", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.schemas.AddField(context.Background(), schema.ID, &repository.CreateFieldRequest{
		FieldName: "email", FieldLabel: "Email", FieldType: constants.FieldEmail, IsRequired: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &schema.ID
}

func okRoute(confidence float64) ocr.RouteResult {
	best := ocr.Candidate{
		Engine: ocr.EngineTesseract, Text: "some scanned text",
		Confidence: confidence, Elapsed: 80 * time.Millisecond,
	}
	return ocr.RouteResult{
		QualityScore: 0.9,
		EnginesUsed:  []string{ocr.EngineRapidOCR, ocr.EngineTesseract},
		Best:         best,
		All:          []ocr.Candidate{{Engine: ocr.EngineRapidOCR, Confidence: confidence - 0.1}, best},
		ImagePath:    "/data/in/scan.png",
		NumPages:     1,
	}
}

func stages(t *testing.T, h *harness, id uuid.UUID) []string {
	t.Helper()
	entries, err := h.logs.ListByDocument(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Stage
	}
	return out
}

func TestRunWithoutSchema(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRouter{result: okRoute(0.92)}, &stubExtractor{})
	id := h.newDocument(t, nil)

	res, err := h.pipeline.Run(ctx, id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != constants.StatusCompleted || res.OverallConfidence != 0.92 {
		t.Fatalf("result = %+v", res)
	}

	doc, err := h.docs.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != constants.StatusCompleted || doc.OverallConfidence != 0.92 {
		t.Fatalf("document = %+v", doc)
	}

	got := stages(t, h, id)
	want := []string{constants.StageStart, constants.StageOCR, constants.StageCompleted}
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stages = %v, want %v", got, want)
		}
	}

	t.Run("candidates persisted append-only", func(t *testing.T) {
		pages, err := h.pages.ListByDocument(ctx, id)
		if err != nil || len(pages) != 1 {
			t.Fatalf("pages = %v (%v)", pages, err)
		}
		if pages[0].QualityScore != 0.9 {
			t.Fatalf("quality = %v", pages[0].QualityScore)
		}
		results, err := h.results.ListOCRResults(ctx, pages[0].ID)
		if err != nil || len(results) != 2 {
			t.Fatalf("ocr results = %v (%v)", results, err)
		}
	})
}

func TestRunWithSchemaMissingRequiredEmail(t *testing.T) {
	ctx := context.Background()
	extractor := &stubExtractor{out: llm.DocumentFields{
		Model:       "gpt-4o-mini",
		Values:      map[string]any{"email": nil},
		Confidences: map[string]float64{"email": 0.0},
		Overall:     0.0,
		Raw:         json.RawMessage(`{"email":null,"email_confidence":0.0}`),
	}}
	h := newHarness(t, &fakeRouter{result: okRoute(0.9)}, extractor)
	id := h.newDocument(t, h.emailSchema(t))

	res, err := h.pipeline.Run(ctx, id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != constants.StatusCompleted {
		t.Fatalf("status = %s", res.Status)
	}
	if res.OverallConfidence != 0.0 {
		t.Fatalf("overall = %v, want the extractor's 0.0 mean", res.OverallConfidence)
	}
	if len(res.FieldValues) != 1 {
		t.Fatalf("field values = %+v", res.FieldValues)
	}
	fv := res.FieldValues[0]
	if !fv.NeedsReview {
		t.Fatal("missing required field must need review")
	}
	if fv.ExtractedValue != nil {
		t.Fatalf("extracted = %v, want nil", *fv.ExtractedValue)
	}

	got := stages(t, h, id)
	want := []string{constants.StageStart, constants.StageOCR, constants.StageLLM, constants.StageValidation, constants.StageCompleted}
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}

	t.Run("validation log carries warning level", func(t *testing.T) {
		entries, err := h.logs.ListByDocument(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if e.Stage == constants.StageValidation && e.Level != constants.LevelWarning {
				t.Fatalf("validation level = %s", e.Level)
			}
		}
	})
}

func TestRunDegradesToFallbackExtractor(t *testing.T) {
	ctx := context.Background()
	extractor := &stubExtractor{err: errors.New("model unreachable")}
	h := newHarness(t, &fakeRouter{result: okRoute(0.9)}, extractor)
	id := h.newDocument(t, h.emailSchema(t))

	res, err := h.pipeline.Run(ctx, id)
	if err != nil {
		t.Fatalf("extractor failure must not fail the pipeline: %v", err)
	}
	if res.Status != constants.StatusCompleted || res.OverallConfidence != 0.0 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.FieldValues) != 1 || !res.FieldValues[0].NeedsReview {
		t.Fatalf("field values = %+v", res.FieldValues)
	}

	pages, err := h.pages.ListByDocument(ctx, id)
	if err != nil || len(pages) != 1 {
		t.Fatal(err)
	}
	extractions, err := h.results.ListExtractionResults(ctx, pages[0].ID)
	if err != nil || len(extractions) != 1 {
		t.Fatalf("extractions = %v (%v)", extractions, err)
	}
	if extractions[0].Model != llm.FallbackModel {
		t.Fatalf("model = %q, want %q", extractions[0].Model, llm.FallbackModel)
	}
}

func TestRunAllEnginesFail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRouter{err: errors.New("all OCR engines failed")}, &stubExtractor{})
	id := h.newDocument(t, nil)

	if _, err := h.pipeline.Run(ctx, id); err == nil {
		t.Fatal("expected Run to fail")
	}

	doc, err := h.docs.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != constants.StatusFailed {
		t.Fatalf("status = %s", doc.Status)
	}
	if doc.ErrorMessage == nil || !strings.Contains(*doc.ErrorMessage, "all OCR engines failed") {
		t.Fatalf("error message = %v", doc.ErrorMessage)
	}

	latest, err := h.logs.Latest(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Stage != constants.StageError || latest.Level != constants.LevelError {
		t.Fatalf("latest log = %+v", latest)
	}
	if !strings.Contains(latest.Message, "all OCR engines failed") {
		t.Fatalf("log message = %q", latest.Message)
	}
}

func TestRunRefusedWhileInFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRouter{result: okRoute(0.9)}, &stubExtractor{})
	id := h.newDocument(t, nil)

	if _, err := h.docs.MarkProcessing(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := h.pipeline.Run(ctx, id); !errors.Is(err, common.ErrAlreadyActive) {
		t.Fatalf("err = %v, want ErrAlreadyActive", err)
	}
}

func TestProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRouter{result: okRoute(0.9)}, &stubExtractor{})
	id := h.newDocument(t, nil)

	t.Run("no log entries reports zero", func(t *testing.T) {
		info, err := h.pipeline.Progress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Progress != 0 || info.Stage != "" || info.Status != constants.StatusUploaded {
			t.Fatalf("progress = %+v", info)
		}
	})

	t.Run("mid-flight stages map to the fixed table", func(t *testing.T) {
		if _, err := h.logs.Append(ctx, id, constants.StageOCR, "OCR completed", constants.LevelInfo); err != nil {
			t.Fatal(err)
		}
		info, err := h.pipeline.Progress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Progress != 40 || info.Stage != constants.StageOCR {
			t.Fatalf("progress = %+v", info)
		}
	})

	t.Run("idempotent between log writes", func(t *testing.T) {
		first, err := h.pipeline.Progress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		second, err := h.pipeline.Progress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if *first != *second {
			t.Fatalf("progress diverged: %+v vs %+v", first, second)
		}
	})

	t.Run("completed run reports 100", func(t *testing.T) {
		if _, err := h.pipeline.Run(ctx, id); err != nil {
			t.Fatal(err)
		}
		info, err := h.pipeline.Progress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Progress != 100 || info.Stage != constants.StageCompleted {
			t.Fatalf("progress = %+v", info)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		if _, err := h.pipeline.Progress(ctx, uuid.New()); !errors.Is(err, common.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}
