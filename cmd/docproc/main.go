package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/export"
	"github.com/docufield/docufield/internal/ingest"
	"github.com/docufield/docufield/internal/llm"
	"github.com/docufield/docufield/internal/llm/ollama"
	"github.com/docufield/docufield/internal/llm/openai"
	"github.com/docufield/docufield/internal/ocr"
	"github.com/docufield/docufield/internal/pipeline"
	"github.com/docufield/docufield/internal/quality"
	"github.com/docufield/docufield/internal/repository"
)

// schemaFile is the JSON shape accepted by --schema: a name plus the field
// definitions to extract and validate against.
type schemaFile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Fields      []struct {
		FieldName       string   `json:"field_name"`
		FieldLabel      string   `json:"field_label"`
		FieldType       string   `json:"field_type"`
		IsRequired      bool     `json:"is_required"`
		RegexValidation string   `json:"regex_validation"`
		DropdownOptions []string `json:"dropdown_options"`
	} `json:"fields"`
}

func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// docproc processes one file or a directory synchronously and prints the
// extracted field values. With --out it also writes an XLSX (or CSV with
// --csv) of every document bound to the schema.
func main() {
	var (
		inmem      = flag.Bool("inmem", false, "use an in-memory SQLite database instead of DB_URL")
		dir        = flag.String("dir", "", "directory to process")
		file       = flag.String("file", "", "single file to process")
		schemaPath = flag.String("schema", "", "JSON schema definition to extract against (optional)")
		out        = flag.String("out", "", "export path; .csv or .xlsx decided by --csv")
		csvOut     = flag.Bool("csv", false, "export CSV instead of XLSX")
	)
	flag.Parse()

	if (*dir == "") == (*file == "") {
		printError("Error: exactly one of --dir or --file is required\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	cfg := common.LoadConfig()
	ctx := context.Background()

	sqlDB, cleanup, err := openDB(ctx, cfg, *inmem, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	documents := repository.NewDocumentRepository(sqlDB, logger)
	pages := repository.NewPageRepository(sqlDB, logger)
	results := repository.NewResultRepository(sqlDB, logger)
	fieldValues := repository.NewFieldValueRepository(sqlDB, logger)
	logs := repository.NewLogRepository(sqlDB, logger)
	schemas := repository.NewSchemaRepository(sqlDB, logger)

	var schemaID *uuid.UUID
	if *schemaPath != "" {
		id, err := loadSchema(ctx, schemas, *schemaPath)
		if err != nil {
			logger.Error("loading schema definition", "path", *schemaPath, "error", err)
			os.Exit(1)
		}
		schemaID = &id
	}

	pipe := pipeline.New(pipeline.Deps{
		Documents:   documents,
		Pages:       pages,
		Results:     results,
		FieldValues: fieldValues,
		Logs:        logs,
		Schemas:     schemas,
		Router:      buildRouter(cfg, logger),
		Extractor:   buildExtractor(ctx, cfg, logger),
		Logger:      logger,
	})

	// No queue: the batch runs documents inline, one at a time.
	ingestor := ingest.NewFSIngestor(documents, nil, logger)

	var ingested []ingest.IngestionResult
	if *file != "" {
		res, err := ingestor.IngestPath(ctx, schemaID, *file)
		if err != nil {
			logger.Error("ingest failed", "path", *file, "error", err)
			os.Exit(1)
		}
		ingested = append(ingested, res)
	} else {
		all, stats, err := ingestor.IngestDirectory(ctx, schemaID, *dir, true)
		if err != nil {
			logger.Error("ingest failed", "dir", *dir, "error", err)
			os.Exit(1)
		}
		logger.Info("directory ingested",
			"scanned", stats.Scanned, "matched", stats.Matched,
			"succeeded", stats.Succeeded, "deduplicated", stats.Deduplicated,
			"failed", stats.Failed,
		)
		ingested = all
	}

	failures := 0
	for _, res := range ingested {
		if res.Err != "" {
			failures++
			continue
		}
		docID, err := uuid.Parse(res.DocumentID)
		if err != nil {
			logger.Error("bad document id", "path", res.SourcePath, "error", err)
			failures++
			continue
		}
		run, err := pipe.Run(ctx, docID)
		if err != nil {
			logger.Error("processing failed", "path", res.SourcePath, "error", err)
			failures++
			continue
		}
		printRun(res.SourcePath, run)
	}

	if *out != "" && schemaID != nil {
		if err := writeExport(ctx, documents, schemas, fieldValues, logger, *schemaID, *out, *csvOut); err != nil {
			logger.Error("export failed", "path", *out, "error", err)
			os.Exit(1)
		}
		fmt.Printf("exported %s\n", *out)
	}

	if failures > 0 {
		os.Exit(1)
	}
}

func printRun(path string, run *pipeline.RunResult) {
	fmt.Printf("%s: %s (confidence %.2f)\n", filepath.Base(path), run.Status, run.OverallConfidence)
	for _, fv := range run.FieldValues {
		marker := " "
		if fv.NeedsReview {
			marker = "!"
		}
		fmt.Printf("  %s %-24s %-32q %.2f\n", marker, fv.FieldName, fv.ExportValue(), fv.Confidence)
	}
}

// openDB returns either the pgx-backed pool or an in-memory SQLite handle,
// migrated and ready. The cleanup closes whatever was opened.
func openDB(ctx context.Context, cfg *common.Config, inmem bool, logger *slog.Logger) (*sql.DB, func(), error) {
	if inmem {
		sqlDB, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := repository.Migrate(ctx, sqlDB, logger); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return sqlDB, func() { _ = sqlDB.Close() }, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	sqlDB, pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.Migrate(ctx, sqlDB, logger); err != nil {
		repository.Close(sqlDB, pool, logger)
		return nil, nil, err
	}
	return sqlDB, func() { repository.Close(sqlDB, pool, logger) }, nil
}

func loadSchema(ctx context.Context, schemas repository.SchemaRepository, path string) (uuid.UUID, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return uuid.Nil, err
	}
	var def schemaFile
	if err := json.Unmarshal(raw, &def); err != nil {
		return uuid.Nil, fmt.Errorf("parse schema definition: %w", err)
	}
	if def.Name == "" || len(def.Fields) == 0 {
		return uuid.Nil, fmt.Errorf("schema definition needs a name and at least one field")
	}

	s, err := schemas.CreateSchema(ctx, def.Name, def.Description)
	if err != nil {
		return uuid.Nil, err
	}
	for i, f := range def.Fields {
		ft, err := constants.ParseFieldType(f.FieldType)
		if err != nil {
			return uuid.Nil, err
		}
		if _, err := schemas.AddField(ctx, s.ID, &repository.CreateFieldRequest{
			FieldName:       f.FieldName,
			FieldLabel:      f.FieldLabel,
			FieldType:       ft,
			IsRequired:      f.IsRequired,
			RegexValidation: f.RegexValidation,
			DropdownOptions: f.DropdownOptions,
			DisplayOrder:    i,
		}); err != nil {
			return uuid.Nil, err
		}
	}
	return s.ID, nil
}

func writeExport(ctx context.Context, documents repository.DocumentRepository, schemas repository.SchemaRepository, values repository.FieldValueRepository, logger *slog.Logger, schemaID uuid.UUID, out string, asCSV bool) error {
	svc := export.NewService(documents, schemas, values, logger)
	var (
		data []byte
		err  error
	)
	if asCSV {
		data, err = svc.ExportCSV(ctx, schemaID)
	} else {
		data, err = svc.ExportXLSX(ctx, schemaID)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func buildRouter(cfg *common.Config, logger *slog.Logger) *ocr.Router {
	assessor := quality.NewAssessor(logger)
	rasterizer := ocr.NewRasterizer(ocr.RasterizerConfig{
		Pdftoppm: cfg.OCR.Pdftoppm,
		DPI:      cfg.OCR.DPI,
		CacheDir: cfg.OCR.CacheDir,
	}, nil, logger)
	tesseract := ocr.NewTesseract(ocr.TesseractConfig{
		Binary:      cfg.OCR.Tesseract,
		Lang:        cfg.OCR.TesseractLang,
		TessdataDir: cfg.OCR.TessdataDir,
	}, nil, logger)
	rapid := ocr.NewRemote(ocr.RemoteConfig{Name: ocr.EngineRapidOCR, BaseURL: cfg.OCR.RapidOCRURL}, logger)
	paddle := ocr.NewRemote(ocr.RemoteConfig{Name: ocr.EnginePaddleOCR, BaseURL: cfg.OCR.PaddleOCRURL}, logger)
	return ocr.NewRouter(assessor, rasterizer, rapid, tesseract, paddle, logger)
}

func buildExtractor(ctx context.Context, cfg *common.Config, logger *slog.Logger) llm.FieldExtractor {
	if cfg.LLM.UseLocal {
		client := ollama.NewClient(ollama.Config{
			BaseURL: cfg.LLM.OllamaURL,
			Model:   cfg.LLM.OllamaModel,
		}, logger)
		if !client.Available(ctx) {
			logger.Warn("ollama endpoint not reachable at startup", "url", cfg.LLM.OllamaURL)
		}
		return client
	}
	return openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		FullModel:   cfg.LLM.FullModel,
		MiniModel:   cfg.LLM.MiniModel,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
}
