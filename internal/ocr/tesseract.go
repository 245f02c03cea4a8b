package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// TesseractConfig configures the exec-based tesseract engine.
type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // e.g., 6 is good for a uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
}

// Tesseract runs the tesseract binary in TSV mode, which yields text,
// per-token bounding boxes and word confidences in one pass.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg TesseractConfig, runner Runner, logger *slog.Logger) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

func (t *Tesseract) Name() string { return EngineTesseract }

// Run invokes tesseract <file> stdout ... tsv and aggregates the token rows
// into a candidate. Mean word confidence is normalized from 0..100 to 0..1.
func (t *Tesseract) Run(ctx context.Context, imagePath string) (Candidate, error) {
	start := time.Now()

	args := []string{imagePath, "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return Candidate{}, fmt.Errorf("tesseract: %w (stderr: %s)", err, truncate(string(errb), 512))
	}

	texts := make([]string, 0, 64)
	boxes := make([]BoundingBox, 0, 64)
	var sum float64
	var n int

	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || len(ln) == 0 {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf <= 0 {
			continue // structural rows carry conf -1
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		left, _ := strconv.Atoi(cols[6])
		top, _ := strconv.Atoi(cols[7])
		width, _ := strconv.Atoi(cols[8])
		height, _ := strconv.Atoi(cols[9])

		texts = append(texts, word)
		boxes = append(boxes, BoundingBox{X: left, Y: top, Width: width, Height: height, Text: word})
		sum += conf
		n++
	}

	var mean float64
	if n > 0 {
		mean = sum / float64(n) / 100.0
	}

	cand := Candidate{
		Engine:     EngineTesseract,
		Text:       strings.Join(texts, " "),
		Confidence: clamp01(mean),
		Boxes:      boxes,
		Elapsed:    time.Since(start),
	}
	t.logger.Debug("ocr.tesseract.ok",
		"words", n,
		"confidence", cand.Confidence,
		"elapsed_ms", cand.Elapsed.Milliseconds(),
	)
	return cand, nil
}
