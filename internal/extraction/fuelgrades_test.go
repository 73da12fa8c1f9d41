package extraction

import (
	"reflect"
	"testing"
)

func TestDecodeFuelGrades(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"comma separated", "1,2,3", []string{"Regular", "Plus", "Premium"}},
		{"slash separated", "1/5", []string{"Regular", "Diesel"}},
		{"spaces", "2 4", []string{"Plus", "Super"}},
		{"unknown code preserved", "1,42", []string{"Regular", "42"}},
		{"non numeric preserved", "DEF", []string{"DEF"}},
		{"empty", "", nil},
		{"only separators", ", ,", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeFuelGrades(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeFuelGrades(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
