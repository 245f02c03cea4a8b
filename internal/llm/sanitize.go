package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/docufield/docufield/internal/entity"
)

// StripCodeFence removes a fenced-code wrapper (```json ... ``` or ``` ...
// ```) if the model added one, returning the inner payload.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	return s
}

// SanitizeFields repairs a response that failed strict validation so the
// document can still validate:
// - unknown keys are removed (additionalProperties=false friendliness)
// - confidence values arriving as strings or out of range are coerced/clamped
// - confidence nulls are rewritten to 0.0
// Field values themselves are left alone; validation judges those.
func SanitizeFields(raw []byte, fields []entity.SchemaField) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	allowed := make(map[string]struct{}, len(fields)*2)
	for _, f := range fields {
		allowed[f.FieldName] = struct{}{}
		allowed[f.FieldName+"_confidence"] = struct{}{}
	}

	var dropped []string
	for k, v := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
			continue
		}
		if !strings.HasSuffix(k, "_confidence") {
			continue
		}
		switch t := v.(type) {
		case nil:
			m[k] = 0.0
		case float64:
			if t < 0 {
				m[k] = 0.0
			} else if t > 1 {
				m[k] = 1.0
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				if f < 0 {
					f = 0
				}
				if f > 1 {
					f = 1
				}
				m[k] = f
			} else {
				delete(m, k)
				dropped = append(dropped, k+"(unparsable)")
			}
		default:
			delete(m, k)
			dropped = append(dropped, k+"(type)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

// DecodeFields splits a validated flat response object into per-field values
// and confidences keyed by schema field name. Absent entries become a nil
// value with 0.0 confidence so downstream stages always see a complete shape.
func DecodeFields(raw []byte, fields []entity.SchemaField) (map[string]any, map[string]float64, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("decode fields: %w", err)
	}

	values := make(map[string]any, len(fields))
	confidences := make(map[string]float64, len(fields))
	for _, f := range fields {
		values[f.FieldName] = m[f.FieldName]
		if c, ok := m[f.FieldName+"_confidence"].(float64); ok {
			confidences[f.FieldName] = c
		}
	}
	return values, confidences, nil
}
