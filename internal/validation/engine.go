package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/entity"
)

// WarningConfidenceThreshold marks extracted values worth a second look. It is
// deliberately looser than the review policy's own threshold: a low-confidence
// value is a warning here, never an error.
const WarningConfidenceThreshold = 0.70

// FieldResult carries the findings for one schema field.
type FieldResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Result aggregates findings at both levels. Errors and Warnings repeat the
// per-field findings in schema order for callers that only want the rollup.
type Result struct {
	IsValid  bool                   `json:"is_valid"`
	Errors   []string               `json:"errors"`
	Warnings []string               `json:"warnings"`
	Fields   map[string]FieldResult `json:"field_validations"`
}

// currency and thousands noise tolerated in numeric values
var numberCleaner = strings.NewReplacer(",", "", "$", "", "€", "", "£", "")

// Validate applies the per-field rules to an extraction outcome. It is a pure
// function of its inputs: every rule is evaluated for every field, nothing
// short-circuits, and findings are data, not errors.
//
// Rules per field:
//   - required and missing (nil or empty) is an error
//   - confidence below WarningConfidenceThreshold is a warning
//   - number values must parse after stripping separators and currency symbols
//   - email values must contain '@'
//   - date values without a '/', '-' or '.' separator draw a warning only
//   - a declared regex that does not match is an error
//   - a dropdown value outside the declared options draws a warning
func Validate(values map[string]any, confidences map[string]float64, fields []entity.SchemaField) Result {
	out := Result{
		IsValid: true,
		Fields:  make(map[string]FieldResult, len(fields)),
	}

	for _, f := range fields {
		fr := FieldResult{Valid: true}
		value := ValueString(values[f.FieldName])
		confidence := confidences[f.FieldName]

		if f.IsRequired && value == "" {
			fr.Valid = false
			fr.Errors = append(fr.Errors, fmt.Sprintf("Required field '%s' is missing", f.FieldName))
			out.IsValid = false
		}

		if confidence < WarningConfidenceThreshold {
			fr.Warnings = append(fr.Warnings, fmt.Sprintf("Low confidence (%.2f) for field '%s'", confidence, f.FieldName))
		}

		if value != "" {
			switch f.FieldType {
			case constants.FieldNumber:
				if _, err := strconv.ParseFloat(numberCleaner.Replace(value), 64); err != nil {
					fr.Valid = false
					fr.Errors = append(fr.Errors, fmt.Sprintf("Field '%s' should be numeric", f.FieldName))
					out.IsValid = false
				}
			case constants.FieldEmail:
				if !strings.Contains(value, "@") {
					fr.Valid = false
					fr.Errors = append(fr.Errors, fmt.Sprintf("Field '%s' should be a valid email", f.FieldName))
					out.IsValid = false
				}
			case constants.FieldDate:
				if !strings.ContainsAny(value, "/-.") {
					fr.Warnings = append(fr.Warnings, fmt.Sprintf("Field '%s' might not be a valid date format", f.FieldName))
				}
			case constants.FieldDropdown:
				if len(f.DropdownOptions) > 0 && !contains(f.DropdownOptions, value) {
					fr.Warnings = append(fr.Warnings, fmt.Sprintf("Field '%s' value is not one of the declared options", f.FieldName))
				}
			}

			if f.RegexValidation != "" {
				if re, err := regexp.Compile(f.RegexValidation); err == nil && !re.MatchString(value) {
					fr.Valid = false
					fr.Errors = append(fr.Errors, fmt.Sprintf("Field '%s' does not match the expected pattern", f.FieldName))
					out.IsValid = false
				}
			}
		}

		out.Fields[f.FieldName] = fr
		out.Errors = append(out.Errors, fr.Errors...)
		out.Warnings = append(out.Warnings, fr.Warnings...)
	}

	return out
}

// ValueString renders any extracted value into its comparable string form.
// nil and empty strings both count as missing.
func ValueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func contains(opts []string, v string) bool {
	for _, o := range opts {
		if o == v {
			return true
		}
	}
	return false
}
