package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// RemoteConfig configures an HTTP OCR sidecar engine (RapidOCR or PaddleOCR
// served behind a small inference endpoint). An empty BaseURL means the
// engine is disabled and contributes the zero-confidence placeholder.
type RemoteConfig struct {
	Name    string
	BaseURL string
	Timeout time.Duration
}

// Remote posts the page image to a sidecar and decodes its recognition
// response. Engine-native confidences are already 0..1; they are clamped
// before comparison.
type Remote struct {
	cfg    RemoteConfig
	http   *http.Client
	logger *slog.Logger
}

func NewRemote(cfg RemoteConfig, logger *slog.Logger) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (r *Remote) Name() string { return r.cfg.Name }

type remoteRequest struct {
	Image string `json:"image"` // base64-encoded page image
}

type remoteResponse struct {
	Text       string `json:"text"`
	Confidence float64
	Boxes      []BoundingBox `json:"boxes,omitempty"`
}

// remoteResponse.Confidence needs a custom key because sidecars disagree on
// "confidence" vs "score".
func (rr *remoteResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text       string        `json:"text"`
		Confidence *float64      `json:"confidence"`
		Score      *float64      `json:"score"`
		Boxes      []BoundingBox `json:"boxes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rr.Text = raw.Text
	rr.Boxes = raw.Boxes
	switch {
	case raw.Confidence != nil:
		rr.Confidence = *raw.Confidence
	case raw.Score != nil:
		rr.Confidence = *raw.Score
	}
	return nil
}

func (r *Remote) Run(ctx context.Context, imagePath string) (Candidate, error) {
	start := time.Now()

	if r.cfg.BaseURL == "" {
		// Disabled engine: placeholder, not an error.
		r.logger.Debug("ocr.remote.disabled", "engine", r.cfg.Name)
		return Placeholder(r.cfg.Name), nil
	}

	img, err := os.ReadFile(imagePath)
	if err != nil {
		return Candidate{}, fmt.Errorf("%s: read image: %w", r.cfg.Name, err)
	}

	body, err := json.Marshal(remoteRequest{Image: base64.StdEncoding.EncodeToString(img)})
	if err != nil {
		return Candidate{}, fmt.Errorf("%s: marshal request: %w", r.cfg.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return Candidate{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return Candidate{}, fmt.Errorf("%s: http: %w", r.cfg.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Candidate{}, fmt.Errorf("%s: read response: %w", r.cfg.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Candidate{}, fmt.Errorf("%s: status %d: %s", r.cfg.Name, resp.StatusCode, truncate(string(raw), 512))
	}

	var rr remoteResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return Candidate{}, fmt.Errorf("%s: decode response: %w", r.cfg.Name, err)
	}

	cand := Candidate{
		Engine:     r.cfg.Name,
		Text:       rr.Text,
		Confidence: clamp01(rr.Confidence),
		Boxes:      rr.Boxes,
		Elapsed:    time.Since(start),
	}
	r.logger.Debug("ocr.remote.ok",
		"engine", r.cfg.Name,
		"text_len", len(cand.Text),
		"confidence", cand.Confidence,
		"elapsed_ms", cand.Elapsed.Milliseconds(),
	)
	return cand, nil
}
