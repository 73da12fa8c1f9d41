package extraction

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse test HTML: %v", err)
	}
	return doc
}

const currentMarkupRow = `<table><tbody>
<tr data-wo-id="48291">
  <td data-col="wo"><a href="/workorders/48291">WO-48291</a></td>
  <td data-col="site">Shell Riverside</td>
  <td data-col="address">120 River Rd, Springfield, IL 62704</td>
  <td data-col="service" data-code="CAL12"><span class="code">CAL12</span><span class="name">Meter Calibration</span></td>
  <td data-col="scheduled" data-date="2025-03-14">03/14/2025</td>
  <td data-col="visit"><a class="visit-link" href="/visits/9917">V-9917</a></td>
</tr>
</tbody></table>`

const legacyMarkupRow = `<table><tbody>
<tr>
  <td>WO #7701</td>
  <td>BP Hilltop</td>
  <td>9 Summit Ave, Dover, NH 03820</td>
  <td>Inspection</td>
  <td>Jan 5, 2025</td>
</tr>
</tbody></table>`

func TestWorkOrderRowCurrentMarkup(t *testing.T) {
	doc := docFromHTML(t, currentMarkupRow)
	row := doc.Find("tr").First()

	order, err := WorkOrderRow(row, "user-1", "https://portal.example.com")
	if err != nil {
		t.Fatalf("WorkOrderRow failed: %v", err)
	}

	if order.ExternalID != "48291" {
		t.Errorf("ExternalID = %q, want 48291", order.ExternalID)
	}
	if order.SiteName != "Shell Riverside" {
		t.Errorf("SiteName = %q", order.SiteName)
	}
	if order.ServiceCode != "CAL12" {
		t.Errorf("ServiceCode = %q, want CAL12", order.ServiceCode)
	}
	if order.ScheduledDate == nil || order.ScheduledDate.Format("2006-01-02") != "2025-03-14" {
		t.Errorf("ScheduledDate = %v, want 2025-03-14", order.ScheduledDate)
	}
	if order.Visit.ID != "9917" {
		t.Errorf("Visit.ID = %q, want 9917", order.Visit.ID)
	}
	if order.Visit.URL != "https://portal.example.com/visits/9917" {
		t.Errorf("Visit.URL = %q", order.Visit.URL)
	}
	if order.DetailURL != "https://portal.example.com/workorders/48291" {
		t.Errorf("DetailURL = %q", order.DetailURL)
	}
	if order.Address.City != "Springfield" || order.Address.State != "IL" || order.Address.Zip != "62704" {
		t.Errorf("Address = %+v", order.Address)
	}
}

func TestWorkOrderRowLegacyFallbacks(t *testing.T) {
	doc := docFromHTML(t, legacyMarkupRow)
	row := doc.Find("tr").First()

	order, err := WorkOrderRow(row, "user-1", "https://portal.example.com")
	if err != nil {
		t.Fatalf("WorkOrderRow failed on legacy markup: %v", err)
	}

	// Regex fallback pulls the numeric id out of "WO #7701".
	if order.ExternalID != "7701" {
		t.Errorf("ExternalID = %q, want 7701", order.ExternalID)
	}
	// Positional fallbacks cover site and address columns.
	if order.SiteName != "BP Hilltop" {
		t.Errorf("SiteName = %q", order.SiteName)
	}
	if order.Address.Raw != "9 Summit Ave, Dover, NH 03820" {
		t.Errorf("Address.Raw = %q", order.Address.Raw)
	}
	if order.ScheduledDate == nil || order.ScheduledDate.Format("2006-01-02") != "2025-01-05" {
		t.Errorf("ScheduledDate = %v, want 2025-01-05", order.ScheduledDate)
	}
	// No visit link on legacy rows: field stays null, no error.
	if order.Visit.URL != "" {
		t.Errorf("Visit.URL = %q, want empty", order.Visit.URL)
	}
}

func TestWorkOrderRowNoIdentity(t *testing.T) {
	doc := docFromHTML(t, `<table><tbody><tr><td></td><td>Site Only</td></tr></tbody></table>`)
	row := doc.Find("tr").First()

	if _, err := WorkOrderRow(row, "user-1", "https://portal.example.com"); err == nil {
		t.Fatal("expected error for row with no external id")
	}
}

func TestWorkOrderRowEmptySelection(t *testing.T) {
	doc := docFromHTML(t, `<div></div>`)
	row := doc.Find("tr")

	if _, err := WorkOrderRow(row, "user-1", "https://portal.example.com"); err == nil {
		t.Fatal("expected error for empty selection")
	}
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		city string
		zip  string
	}{
		{"standard", "120 River Rd, Springfield, IL 62704", "Springfield", "62704"},
		{"zip plus four", "1 Main St, Austin, TX 78701-1234", "Austin", "78701-1234"},
		{"unrecognized shape", "Building 4 Industrial Park", "", ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := SplitAddress(tt.raw)
			if addr.City != tt.city {
				t.Errorf("City = %q, want %q", addr.City, tt.city)
			}
			if addr.Zip != tt.zip {
				t.Errorf("Zip = %q, want %q", addr.Zip, tt.zip)
			}
			if addr.Raw != tt.raw {
				t.Errorf("Raw = %q, want %q", addr.Raw, tt.raw)
			}
		})
	}
}

func TestParseScheduledDateLayouts(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"2025-03-14", "2025-03-14", true},
		{"03/14/2025", "2025-03-14", true},
		{"3/4/2025", "2025-03-04", true},
		{"Jan 5, 2025", "2025-01-05", true},
		{"05-Jan-2025", "2025-01-05", true},
		{"next Tuesday", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseScheduledDate(tt.raw)
			if ok != tt.ok {
				t.Fatalf("parseScheduledDate(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && got.Format("2006-01-02") != tt.want {
				t.Errorf("parseScheduledDate(%q) = %s, want %s", tt.raw, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}
