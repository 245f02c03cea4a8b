package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// RasterizerConfig configures PDF first-page rasterization.
type RasterizerConfig struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // default 300
	CacheDir string // default "./tmp"
}

// Rasterizer converts the first page of a PDF into a PNG the engines can read.
type Rasterizer struct {
	cfg    RasterizerConfig
	runner Runner
	logger *slog.Logger
}

func NewRasterizer(cfg RasterizerConfig, runner Runner, logger *slog.Logger) *Rasterizer {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./tmp"
	}
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{cfg: cfg, runner: runner, logger: logger}
}

// PageCount validates the PDF and returns its page count.
func (r *Rasterizer) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdf page count: %w", err)
	}
	return n, nil
}

// FirstPage renders page 1 at the configured DPI and returns the PNG path
// plus a cleanup func for the artifact directory.
// pdftoppm -f 1 -l 1 -r <dpi> -png <in.pdf> <prefix>
func (r *Rasterizer) FirstPage(ctx context.Context, path string) (string, func(), error) {
	if err := os.MkdirAll(r.cfg.CacheDir, 0o755); err != nil {
		return "", nil, err
	}
	tmpDir, err := os.MkdirTemp(r.cfg.CacheDir, "df-pp-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("rasterize.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}

	prefix := filepath.Join(tmpDir, "page-"+uuid.NewString()[:8])
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-f", "1", "-l", "1",
		"-r", fmt.Sprintf("%d", r.cfg.DPI),
		"-png", path, prefix)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("pdftoppm: %w (stderr: %s)", err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		cleanup()
		return "", nil, fmt.Errorf("pdftoppm produced no images for %q", path)
	}

	r.logger.Debug("rasterize.ok", "pdf", path, "image", matches[0], "dpi", r.cfg.DPI)
	return matches[0], cleanup, nil
}
