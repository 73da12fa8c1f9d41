package extraction

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RuleFunc is one extraction attempt against a DOM selection. It returns
// "" when the rule does not match; it never fails.
type RuleFunc func(sel *goquery.Selection) string

// FieldRule is an ordered list of extraction rules for a single field.
// The fallback policy is data, not control flow, so it is testable per
// field.
type FieldRule struct {
	Name  string
	Rules []RuleFunc
}

// Extract applies the rules in order and returns the first non-empty
// result. When none succeed the field is "" (null), never an error.
func (f FieldRule) Extract(sel *goquery.Selection) string {
	return FirstMatch(sel, f.Rules...)
}

// FirstMatch applies rules in order and takes the first non-empty,
// whitespace-trimmed result.
func FirstMatch(sel *goquery.Selection, rules ...RuleFunc) string {
	if sel == nil {
		return ""
	}
	for _, rule := range rules {
		if v := strings.TrimSpace(rule(sel)); v != "" {
			return v
		}
	}
	return ""
}

// Text extracts the trimmed text of the first element matching selector.
func Text(selector string) RuleFunc {
	return func(sel *goquery.Selection) string {
		return strings.TrimSpace(sel.Find(selector).First().Text())
	}
}

// Attr extracts an attribute of the first element matching selector.
func Attr(selector, attr string) RuleFunc {
	return func(sel *goquery.Selection) string {
		return strings.TrimSpace(sel.Find(selector).First().AttrOr(attr, ""))
	}
}

// SelfAttr extracts an attribute of the selection's own element. Find
// only walks descendants, so rules targeting the row or container node
// itself need this form.
func SelfAttr(attr string) RuleFunc {
	return func(sel *goquery.Selection) string {
		return strings.TrimSpace(sel.AttrOr(attr, ""))
	}
}

// CellText extracts the trimmed text of the nth table cell (0-based).
// Positional rules are last-resort fallbacks behind attribute selectors.
func CellText(index int) RuleFunc {
	return func(sel *goquery.Selection) string {
		return strings.TrimSpace(sel.Find("td").Eq(index).Text())
	}
}

// LabeledValue finds an element whose label text equals label
// (case-insensitive) and extracts its associated value node. Handles both
// dt/dd pairs and label/input form rows.
func LabeledValue(label string) RuleFunc {
	want := strings.ToLower(strings.TrimSpace(label))
	return func(sel *goquery.Selection) string {
		var value string
		sel.Find("dt, label, th, .field-label").EachWithBreak(func(_ int, lab *goquery.Selection) bool {
			if strings.ToLower(strings.TrimSpace(lab.Text())) != want {
				return true
			}
			next := lab.Next()
			if next.Length() == 0 {
				return true
			}
			if v, ok := next.Attr("value"); ok {
				value = strings.TrimSpace(v)
			} else if input := next.Find("input, select, textarea").First(); input.Length() > 0 {
				value = strings.TrimSpace(input.AttrOr("value", ""))
			} else {
				value = strings.TrimSpace(next.Text())
			}
			return value == ""
		})
		return value
	}
}

// Regex extracts the first capture group of re from the text of the
// first element matching selector. An empty selector matches the whole
// selection.
func Regex(selector string, re *regexp.Regexp) RuleFunc {
	return func(sel *goquery.Selection) string {
		target := sel
		if selector != "" {
			target = sel.Find(selector).First()
		}
		m := re.FindStringSubmatch(target.Text())
		if len(m) < 2 {
			return ""
		}
		return strings.TrimSpace(m[1])
	}
}

// collapseWhitespace folds runs of whitespace into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
