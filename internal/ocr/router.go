package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/quality"
)

// Quality tiers for engine selection.
const (
	HighQualityThreshold   = 0.85
	MediumQualityThreshold = 0.60
)

// RouteResult is the routing outcome for one page.
type RouteResult struct {
	QualityScore float64
	EnginesUsed  []string
	Best         Candidate
	All          []Candidate
	ImagePath    string // rasterized page for PDFs, the input itself for images
	NumPages     int    // total pages of the source document
}

// Router picks which engines to invoke based on measured image quality, runs
// them in order, and selects the best candidate.
type Router struct {
	assessor   *quality.Assessor
	rasterizer *Rasterizer
	rapid      Engine
	tesseract  Engine
	paddle     Engine
	logger     *slog.Logger
}

func NewRouter(assessor *quality.Assessor, rasterizer *Rasterizer, rapid, tesseract, paddle Engine, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		assessor:   assessor,
		rasterizer: rasterizer,
		rapid:      rapid,
		tesseract:  tesseract,
		paddle:     paddle,
		logger:     logger,
	}
}

// EnginesFor returns the engine invocation order for a quality score:
// high quality runs rapidocr then tesseract, medium inverts the pair, and
// low quality runs everything available.
func (r *Router) EnginesFor(score float64) []Engine {
	switch {
	case score > HighQualityThreshold:
		return []Engine{r.rapid, r.tesseract}
	case score > MediumQualityThreshold:
		return []Engine{r.tesseract, r.rapid}
	default:
		return []Engine{r.tesseract, r.rapid, r.paddle}
	}
}

// Route rasterizes PDFs, assesses quality, runs the selected engines and
// picks the best candidate. An engine failure is isolated: it contributes no
// candidate and routing proceeds with whatever succeeded. Route fails only
// when every engine fails.
func (r *Router) Route(ctx context.Context, path string) (RouteResult, error) {
	start := time.Now()

	res := RouteResult{ImagePath: path, NumPages: 1}
	if constants.MapExtToFormat(filepath.Ext(path)) == constants.PDF {
		n, err := r.rasterizer.PageCount(path)
		if err != nil {
			return res, err
		}
		res.NumPages = n

		img, cleanup, err := r.rasterizer.FirstPage(ctx, path)
		if err != nil {
			return res, err
		}
		defer cleanup()
		res.ImagePath = img
	}

	res.QualityScore = r.assessor.AssessFile(res.ImagePath)

	var errs []error
	for _, eng := range r.EnginesFor(res.QualityScore) {
		cand, err := eng.Run(ctx, res.ImagePath)
		if err != nil {
			r.logger.Warn("ocr.engine.failed", "engine", eng.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", eng.Name(), err))
			continue
		}
		res.EnginesUsed = append(res.EnginesUsed, eng.Name())
		res.All = append(res.All, cand)
	}
	if len(res.All) == 0 {
		return res, fmt.Errorf("all OCR engines failed: %w", errors.Join(errs...))
	}

	res.Best = SelectBest(res.All)

	r.logger.Info("ocr.route.ok",
		"quality_score", res.QualityScore,
		"engines", res.EnginesUsed,
		"best_engine", res.Best.Engine,
		"best_confidence", res.Best.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// SelectBest returns the candidate with maximum confidence. Ties keep the
// earlier candidate, so invocation order is the fixed priority order. The
// rule is deterministic: re-applying it over persisted OCRResult rows
// recovers the same best candidate.
func SelectBest(cands []Candidate) Candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best
}
