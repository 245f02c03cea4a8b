package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/async"
	"github.com/docufield/docufield/internal/common"
	"github.com/docufield/docufield/internal/repository"
)

// FSIngestor reads from the local filesystem. Files are deduplicated by
// content hash; a known file is reported, not re-registered. When a queue is
// attached, every newly registered document is enqueued for processing.
type FSIngestor struct {
	Documents repository.DocumentRepository
	Queue     async.Queue // optional
	Logger    *slog.Logger
}

func NewFSIngestor(documents repository.DocumentRepository, queue async.Queue, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{Documents: documents, Queue: queue, Logger: logger}
}

func (i *FSIngestor) IngestPath(ctx context.Context, schemaID *uuid.UUID, path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	f, err := os.Open(abs)
	if err != nil {
		return out, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return out, fmt.Errorf("stat: %w", err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return out, fmt.Errorf("hash: %w", err)
	}
	hashHex := hex.EncodeToString(h.Sum(nil))

	if existing, err := i.Documents.FindByHash(ctx, hashHex); err == nil {
		i.Logger.Info("ingest.dedup", "path", abs, "document_id", existing.ID)
		return IngestionResult{
			SourcePath:   abs,
			DocumentID:   existing.ID.String(),
			Deduplicated: true,
			HashHex:      hashHex,
			FileExt:      ext,
			UploadedAt:   existing.CreatedAt,
		}, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return out, err
	}

	doc, err := i.Documents.Create(ctx, &repository.CreateDocumentRequest{
		SchemaID:    schemaID,
		Filename:    filepath.Base(abs),
		SourcePath:  abs,
		ContentHash: hashHex,
		FileSize:    int(info.Size()),
	})
	if err != nil {
		return out, err
	}
	i.Logger.Info("ingest.registered", "path", abs, "document_id", doc.ID, "size", info.Size())

	if i.Queue != nil {
		if err := i.Queue.Enqueue(ctx, async.Job{DocumentID: doc.ID, SubmittedAt: time.Now()}); err != nil {
			i.Logger.Error("ingest.enqueue_failed", "document_id", doc.ID, "error", err)
		}
	}

	return IngestionResult{
		SourcePath: abs,
		DocumentID: doc.ID.String(),
		HashHex:    hashHex,
		FileExt:    ext,
		UploadedAt: doc.CreatedAt,
	}, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and calls
// IngestPath for each matching file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, schemaID *uuid.UUID, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && IsHidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		res, err := i.IngestPath(ctx, schemaID, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, res)
		if res.Deduplicated {
			stats.Deduplicated++
		} else {
			stats.Succeeded++
		}
		return nil
	})
	if err != nil {
		return results, stats, err
	}
	return results, stats, nil
}
