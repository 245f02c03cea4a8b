package quality

import (
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/docufield/docufield/constants"
)

// Fixed defaults: a PDF is assumed reasonable quality until rasterized, and an
// unreadable image scores medium rather than failing the pipeline.
const (
	DefaultPDFScore     = 0.75
	DefaultUnknownScore = 0.5

	// laplacianScale is the empirical variance at which an image counts as
	// fully sharp. Variances above it clamp to 1.0.
	laplacianScale = 1000.0
)

// Assessor scores how OCR-friendly a page image is, in [0,1].
type Assessor struct {
	logger *slog.Logger
}

func NewAssessor(logger *slog.Logger) *Assessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assessor{logger: logger}
}

// AssessFile scores a file on disk. PDFs get the fixed default; anything that
// cannot be opened or decoded gets the medium default. Never returns an error.
func (a *Assessor) AssessFile(path string) float64 {
	if constants.MapExtToFormat(filepath.Ext(path)) == constants.PDF {
		return DefaultPDFScore
	}
	f, err := os.Open(path)
	if err != nil {
		a.logger.Warn("quality.assess.open_failed", "path", path, "error", err)
		return DefaultUnknownScore
	}
	defer func() { _ = f.Close() }()
	return a.Assess(f)
}

// Assess decodes an image and returns a blur/sharpness proxy score: the
// variance of a 3x3 Laplacian response over the grayscale image, normalized
// by laplacianScale and clamped to 1.0.
func (a *Assessor) Assess(r io.Reader) float64 {
	img, _, err := image.Decode(r)
	if err != nil {
		a.logger.Warn("quality.assess.decode_failed", "error", err)
		return DefaultUnknownScore
	}
	score := LaplacianVariance(img) / laplacianScale
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// LaplacianVariance computes the variance of the Laplacian edge response over
// the luma plane of img. Border pixels are skipped.
func LaplacianVariance(img image.Image) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// ITU-R BT.601 luma, 16-bit channels scaled to 0..255
			gray[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257.0
		}
	}

	n := 0
	sum, sumSq := 0.0, 0.0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			// 3x3 Laplacian kernel: 4-neighbour minus 4*center
			v := gray[(y-1)*w+x] + gray[(y+1)*w+x] + gray[y*w+x-1] + gray[y*w+x+1] - 4*gray[y*w+x]
			sum += v
			sumSq += v * v
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}
