package extraction

import (
	"strings"
)

// fuelGradeNames maps the portal's numeric fuel-grade codes to human
// names. The table is deterministic; codes it does not know are preserved
// as their raw string so no information is lost when decoding is
// incomplete.
var fuelGradeNames = map[string]string{
	"1": "Regular",
	"2": "Plus",
	"3": "Premium",
	"4": "Super",
	"5": "Diesel",
	"6": "E-85",
	"7": "Kerosene",
	"8": "Ethanol-Free",
	"9": "Racing",
}

// DecodeFuelGrades turns a raw grade list such as "1,2,3" or "1/2/5"
// into human-readable names. Unknown codes pass through verbatim.
func DecodeFuelGrades(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	codes := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '/' || r == ';' || r == ' '
	})

	grades := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if name, ok := fuelGradeNames[code]; ok {
			grades = append(grades, name)
		} else {
			grades = append(grades, code)
		}
	}

	if len(grades) == 0 {
		return nil
	}
	return grades
}
