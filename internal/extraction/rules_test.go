package extraction

import (
	"regexp"
	"testing"
)

const ruleFixture = `<div id="card" data-kind="primary">
  <span class="title">  Pump House  </span>
  <a href="/detail/55">open</a>
  <dl><dt>Status</dt><dd>Active</dd></dl>
</div>`

func TestFirstMatchOrder(t *testing.T) {
	doc := docFromHTML(t, ruleFixture)
	sel := doc.Find("#card")

	// First rule misses, second wins, third never runs.
	got := FirstMatch(sel,
		Text(".missing"),
		Text(".title"),
		Text("a"),
	)
	if got != "Pump House" {
		t.Errorf("FirstMatch = %q, want %q", got, "Pump House")
	}
}

func TestFirstMatchAllMiss(t *testing.T) {
	doc := docFromHTML(t, ruleFixture)
	sel := doc.Find("#card")

	if got := FirstMatch(sel, Text(".a"), Text(".b")); got != "" {
		t.Errorf("FirstMatch = %q, want empty for all-miss", got)
	}
}

func TestFirstMatchNilSelection(t *testing.T) {
	if got := FirstMatch(nil, Text("a")); got != "" {
		t.Errorf("FirstMatch(nil) = %q, want empty", got)
	}
}

func TestRuleForms(t *testing.T) {
	doc := docFromHTML(t, ruleFixture)
	sel := doc.Find("#card")

	tests := []struct {
		name string
		rule RuleFunc
		want string
	}{
		{"text trims", Text(".title"), "Pump House"},
		{"attr", Attr("a", "href"), "/detail/55"},
		{"self attr", SelfAttr("data-kind"), "primary"},
		{"self attr missing", SelfAttr("data-absent"), ""},
		{"labeled value", LabeledValue("status"), "Active"},
		{"labeled value missing", LabeledValue("owner"), ""},
		{"regex no match against text", Regex("a", regexp.MustCompile(`/detail/(\d+)`)), ""},
		{"regex on text", Regex(".title", regexp.MustCompile(`Pump (\w+)`)), "House"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule(sel); got != tt.want {
				t.Errorf("rule = %q, want %q", got, tt.want)
			}
		})
	}
}
