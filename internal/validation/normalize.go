package validation

import (
	"regexp"
	"strings"

	"github.com/docufield/docufield/constants"
)

var (
	numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	emailPattern  = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`)
)

// Normalize derives the normalized form of an extracted value for its field
// type. It never invents data: when the expected shape cannot be found the
// trimmed original comes back unchanged, so validation still sees the problem.
func Normalize(value string, ft constants.FieldType) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	switch ft {
	case constants.FieldNumber:
		if m := numberPattern.FindString(numberCleaner.Replace(v)); m != "" {
			return m
		}
	case constants.FieldEmail:
		if m := emailPattern.FindString(v); m != "" {
			return m
		}
	case constants.FieldCheckbox:
		switch strings.ToLower(v) {
		case "true", "yes", "checked", "1", "x":
			return "true"
		case "false", "no", "unchecked", "0":
			return "false"
		}
	}
	return v
}
