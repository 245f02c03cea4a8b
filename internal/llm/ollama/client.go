package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/docufield/docufield/internal/llm"
)

// Config for the local Ollama-backed extractor. Selecting it is an explicit
// configuration choice made at pipeline construction, never a runtime toggle.
type Config struct {
	BaseURL string        // default http://localhost:11434
	Model   string        // default "qwen2.5:3b-instruct"
	Timeout time.Duration // default 120s; local inference is slow
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:3b-instruct"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Available reports whether the Ollama endpoint answers and has at least one
// model installed.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	return len(tags.Models) > 0
}

// ExtractFields implements llm.FieldExtractor against /api/generate with
// format=json. The response contract and post-processing are the same as the
// cloud path.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.DocumentFields, error) {
	start := time.Now()

	body := map[string]any{
		"model":  c.cfg.Model,
		"prompt": llm.BuildUserPrompt(req.OCRText, req.Fields),
		"system": llm.BuildSystemPrompt(),
		"stream": false,
		"format": "json",
	}
	b, err := json.Marshal(body)
	if err != nil {
		return llm.DocumentFields{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return llm.DocumentFields{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return llm.DocumentFields{}, fmt.Errorf("ollama http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.DocumentFields{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return llm.DocumentFields{}, fmt.Errorf("ollama status %d: %s", resp.StatusCode, raw)
	}

	var gen struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &gen); err != nil {
		return llm.DocumentFields{}, fmt.Errorf("decode ollama response: %w", err)
	}

	content := []byte(llm.StripCodeFence(gen.Response))
	schema := llm.BuildFieldsJSONSchema(req.Fields)
	if err := llm.ValidateJSONAgainstSchema(schema, content); err != nil {
		cleaned, _, sErr := llm.SanitizeFields(content, req.Fields)
		if sErr != nil {
			return llm.DocumentFields{}, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := llm.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			return llm.DocumentFields{}, fmt.Errorf("schema validation failed: %w", vErr)
		}
		content = cleaned
	}

	values, confidences, err := llm.DecodeFields(content, req.Fields)
	if err != nil {
		return llm.DocumentFields{}, err
	}

	out := llm.DocumentFields{
		Model:       c.cfg.Model,
		Values:      values,
		Confidences: confidences,
		Overall:     llm.OverallConfidence(confidences),
		Raw:         content,
		Elapsed:     time.Since(start),
	}
	c.logger.Info("llm.extract.ok",
		"model", c.cfg.Model,
		"overall_confidence", out.Overall,
		"elapsed_ms", out.Elapsed.Milliseconds(),
	)
	return out, nil
}
