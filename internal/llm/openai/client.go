package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/docufield/docufield/internal/llm"
)

// ExtractFields implements llm.FieldExtractor over chat/completions with
// structured JSON output. Simple documents (confident OCR, short text) go to
// the mini model; everything else to the full model.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.DocumentFields, error) {
	rid := uuid.New().String()
	start := time.Now()

	if c.cfg.APIKey == "" {
		return llm.DocumentFields{}, fmt.Errorf("openai: api key not configured")
	}

	model := c.cfg.FullModel
	if req.Simple() {
		model = c.cfg.MiniModel
	}

	c.log("llm.extract.start", rid,
		"model", model,
		"text_len", len(req.OCRText),
		"ocr_confidence", req.OCRConfidence,
		"fields", len(req.Fields),
	)

	schema := llm.BuildFieldsJSONSchema(req.Fields)
	body := map[string]any{
		"model":           model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt()},
			{"role": "user", "content": llm.BuildUserPrompt(req.OCRText, req.Fields)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log("llm.extract.http_error", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.DocumentFields{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return llm.DocumentFields{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return llm.DocumentFields{}, fmt.Errorf("no choices in openai response")
	}

	content := []byte(llm.StripCodeFence(cc.Choices[0].Message.Content))

	// Validate strictly first; on failure attempt a lenient sanitize pass.
	if err := llm.ValidateJSONAgainstSchema(schema, content); err != nil {
		cleaned, dropped, sErr := llm.SanitizeFields(content, req.Fields)
		if sErr != nil {
			c.log("llm.extract.sanitize_failed", rid, "error", sErr)
			return llm.DocumentFields{}, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := llm.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.log("llm.extract.schema_validation_failed", rid, "error", vErr)
			return llm.DocumentFields{}, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.log("llm.extract.lenient_sanitize_applied", rid, "dropped", dropped)
		content = cleaned
	}

	values, confidences, err := llm.DecodeFields(content, req.Fields)
	if err != nil {
		return llm.DocumentFields{}, err
	}

	out := llm.DocumentFields{
		Model:       model,
		Values:      values,
		Confidences: confidences,
		Overall:     llm.OverallConfidence(confidences),
		Raw:         content,
		Elapsed:     time.Since(start),
	}
	c.log("llm.extract.ok", rid,
		"model", model,
		"overall_confidence", out.Overall,
		"elapsed_ms", out.Elapsed.Milliseconds(),
	)
	return out, nil
}

// post sends the request, retrying transient transport failures once.
func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	return retry.DoWithData(
		func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.http.Do(req)
			if err != nil {
				return nil, fmt.Errorf("openai http error: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, raw)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, retry.Unrecoverable(fmt.Errorf("openai status %d: %s", resp.StatusCode, raw))
			}
			return raw, nil
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.Attempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) log(event, rid string, args ...any) {
	c.logger.Info(event, append([]any{"req_id", rid}, args...)...)
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
