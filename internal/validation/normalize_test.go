package validation

import (
	"testing"

	"github.com/docufield/docufield/constants"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		ft   constants.FieldType
		in   string
		want string
	}{
		{"number strips currency", constants.FieldNumber, "$1,234.56", "1234.56"},
		{"number in prose", constants.FieldNumber, "Total: 42.50 USD", "42.50"},
		{"number absent passes through", constants.FieldNumber, "n/a", "n/a"},
		{"email extracted from prose", constants.FieldEmail, "Contact ana@example.com today", "ana@example.com"},
		{"email absent passes through", constants.FieldEmail, "no address", "no address"},
		{"checkbox yes", constants.FieldCheckbox, "Yes", "true"},
		{"checkbox x mark", constants.FieldCheckbox, "X", "true"},
		{"checkbox no", constants.FieldCheckbox, "no", "false"},
		{"text trimmed", constants.FieldText, "  Acme Corp  ", "Acme Corp"},
		{"date passthrough", constants.FieldDate, "2025-12-07", "2025-12-07"},
		{"empty stays empty", constants.FieldNumber, "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in, tc.ft); got != tc.want {
				t.Fatalf("Normalize(%q, %s) = %q, want %q", tc.in, tc.ft, got, tc.want)
			}
		})
	}
}
