package constants

import "fmt"

// FieldType is the declared type of a schema field. Validation rules key off
// these values; unknown types validate as plain text.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldDropdown FieldType = "dropdown"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
)

// FieldTypes holds the allowed field types, for schema validation.
var FieldTypes = []string{
	string(FieldText), string(FieldNumber), string(FieldDate),
	string(FieldDropdown), string(FieldEmail), string(FieldPhone),
	string(FieldCheckbox), string(FieldFile),
}

// ParseFieldType maps a string to its FieldType, rejecting unknown values.
func ParseFieldType(s string) (FieldType, error) {
	for _, t := range FieldTypes {
		if s == t {
			return FieldType(s), nil
		}
	}
	return "", fmt.Errorf("unknown field type %q", s)
}
