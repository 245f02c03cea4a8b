package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/docufield/docufield/internal/async"
	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/ingest"
	"github.com/docufield/docufield/internal/llm"
	"github.com/docufield/docufield/internal/llm/ollama"
	"github.com/docufield/docufield/internal/llm/openai"
	"github.com/docufield/docufield/internal/ocr"
	"github.com/docufield/docufield/internal/pipeline"
	"github.com/docufield/docufield/internal/quality"
	"github.com/docufield/docufield/internal/repository"
)

// docufieldd is the long-running ingestion daemon: it watches the configured
// directories, registers new documents and runs them through the processing
// pipeline on a worker pool.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load() // optional; env vars win

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.Ingest.WatchDirs) == 0 {
		logger.Error("WATCH_DIRS env var is required (comma-separated directories)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlDB, pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(sqlDB, pool, logger)

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.Migrate(ctx, sqlDB, logger); err != nil {
		logger.Error("applying schema", "error", err)
		os.Exit(1)
	}

	documents := repository.NewDocumentRepository(sqlDB, logger)
	pages := repository.NewPageRepository(sqlDB, logger)
	results := repository.NewResultRepository(sqlDB, logger)
	fieldValues := repository.NewFieldValueRepository(sqlDB, logger)
	logs := repository.NewLogRepository(sqlDB, logger)
	schemas := repository.NewSchemaRepository(sqlDB, logger)

	router := buildRouter(cfg, logger)
	extractor := buildExtractor(ctx, cfg, logger)

	pipe := pipeline.New(pipeline.Deps{
		Documents:   documents,
		Pages:       pages,
		Results:     results,
		FieldValues: fieldValues,
		Logs:        logs,
		Schemas:     schemas,
		Router:      router,
		Extractor:   extractor,
		Logger:      logger,
	})

	queue := async.NewPipelineQueue(pipe, logger,
		async.WithWorkers(cfg.Ingest.Workers),
		async.WithQueueSize(cfg.Ingest.QueueSize),
		async.WithProcessTimeout(cfg.Ingest.JobTimeout),
	)

	ingestor := ingest.NewFSIngestor(documents, queue, logger)

	paths, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Ingest.WatchDirs,
		InitialScan: true,
	})
	if err != nil {
		logger.Error("starting watcher", "error", err)
		os.Exit(1)
	}

	logger.Info("docufieldd running",
		"watch_dirs", cfg.Ingest.WatchDirs,
		"workers", cfg.Ingest.Workers,
	)

	go func() {
		for err := range watchErrs {
			logger.Warn("watcher error", "error", err)
		}
	}()

	for path := range paths {
		if _, err := ingestor.IngestPath(ctx, nil, path); err != nil {
			logger.Error("ingest failed", "path", path, "error", err)
		}
	}

	logger.Info("shutting down, draining queue")
	queue.Shutdown(context.Background())
	logger.Info("stopped")
}

// buildRouter wires the three OCR engines behind the quality-tiered router.
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

	// Remotes with an empty BaseURL stay wired but contribute the
	// zero-confidence placeholder, so tier composition is uniform.
	rapid := ocr.NewRemote(ocr.RemoteConfig{Name: ocr.EngineRapidOCR, BaseURL: cfg.OCR.RapidOCRURL}, logger)
	paddle := ocr.NewRemote(ocr.RemoteConfig{Name: ocr.EnginePaddleOCR, BaseURL: cfg.OCR.PaddleOCRURL}, logger)

	return ocr.NewRouter(assessor, rasterizer, rapid, tesseract, paddle, logger)
}

// buildExtractor returns the configured field extractor. Local inference is
// an explicit opt-in; if the Ollama endpoint is down at startup we still
// return the client and let per-document runs degrade to the fallback.
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
