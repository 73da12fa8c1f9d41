package extraction

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/fieldsync/internal/models"
)

// Ordered fallback rules per work-order list field. The portal's markup
// has drifted before; first selector is the current markup, the rest are
// older generations still seen on some tenants.
var (
	ruleExternalID = FieldRule{Name: "external_id", Rules: []RuleFunc{
		SelfAttr("data-wo-id"),
		Regex("td[data-col='wo'] a, a.wo-number", regexp.MustCompile(`(?i)WO[-#\s]*(\d+)`)),
		Text("td[data-col='wo'] a"),
		Text("a.wo-number"),
		Regex("td:first-child", regexp.MustCompile(`(?i)WO[-#\s]*(\d+)`)),
		CellText(0),
	}}

	ruleSiteName = FieldRule{Name: "site_name", Rules: []RuleFunc{
		Text("td[data-col='site']"),
		Text(".site-name"),
		CellText(1),
	}}

	ruleAddress = FieldRule{Name: "address", Rules: []RuleFunc{
		Text("td[data-col='address']"),
		Text(".site-address"),
		CellText(2),
	}}

	ruleServiceCode = FieldRule{Name: "service_code", Rules: []RuleFunc{
		Attr("td[data-col='service']", "data-code"),
		Text("td[data-col='service'] .code"),
		Regex("td[data-col='service']", regexp.MustCompile(`^([A-Z]{2,4}\d{0,3})\b`)),
	}}

	ruleServiceName = FieldRule{Name: "service_name", Rules: []RuleFunc{
		Text("td[data-col='service'] .name"),
		Text("td[data-col='service']"),
		CellText(3),
	}}

	ruleScheduledDate = FieldRule{Name: "scheduled_date", Rules: []RuleFunc{
		Attr("td[data-col='scheduled']", "data-date"),
		Text("td[data-col='scheduled']"),
		CellText(4),
	}}

	ruleVisitURL = FieldRule{Name: "visit_url", Rules: []RuleFunc{
		Attr("a[href*='/visit']", "href"),
		Attr("td[data-col='visit'] a", "href"),
		Attr("a.visit-link", "href"),
	}}

	ruleVisitNumber = FieldRule{Name: "visit_number", Rules: []RuleFunc{
		Text("td[data-col='visit'] a"),
		Text("a.visit-link"),
	}}

	ruleDetailURL = FieldRule{Name: "detail_url", Rules: []RuleFunc{
		Attr("a[href*='/workorder']", "href"),
		Attr("td[data-col='wo'] a", "href"),
		Attr("a.wo-number", "href"),
	}}
)

// scheduledDateLayouts are tried in order when parsing the portal's
// scheduled-date cell.
var scheduledDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"02-Jan-2006",
}

var visitIDPattern = regexp.MustCompile(`/visit[s]?/(\d+)`)

// WorkOrderRow turns one list-page row into a typed work order. It fails
// only when the row cannot even identify itself (no external id after all
// fallbacks); any other absent field is null, not an error.
func WorkOrderRow(row *goquery.Selection, userID, baseURL string) (*models.WorkOrder, error) {
	if row == nil || row.Length() == 0 {
		return nil, models.NewExtractionError("work order row", fmt.Errorf("row selection is empty"))
	}

	externalID := ruleExternalID.Extract(row)
	if externalID == "" {
		return nil, models.NewExtractionError("work order row", fmt.Errorf("no external id matched any rule"))
	}

	order := &models.WorkOrder{
		UserID:      userID,
		ExternalID:  externalID,
		SiteName:    collapseWhitespace(ruleSiteName.Extract(row)),
		Address:     SplitAddress(ruleAddress.Extract(row)),
		ServiceCode: ruleServiceCode.Extract(row),
		ServiceName: collapseWhitespace(ruleServiceName.Extract(row)),
		DetailURL:   resolveURL(baseURL, ruleDetailURL.Extract(row)),
		Completion:  models.CompletionPending,
		RawFields:   rowRawFields(row),
	}

	if raw := ruleScheduledDate.Extract(row); raw != "" {
		if t, ok := parseScheduledDate(raw); ok {
			order.ScheduledDate = &t
		} else {
			// Keep the unparsed value rather than dropping it.
			order.RawFields["scheduled_date"] = raw
		}
	}

	if visitURL := ruleVisitURL.Extract(row); visitURL != "" {
		order.Visit = models.VisitRef{
			URL:    resolveURL(baseURL, visitURL),
			Number: ruleVisitNumber.Extract(row),
		}
		if m := visitIDPattern.FindStringSubmatch(visitURL); len(m) == 2 {
			order.Visit.ID = m[1]
		}
	}

	return order, nil
}

// rowRawFields captures every data-col cell for forward compatibility
// with columns not yet modeled explicitly.
func rowRawFields(row *goquery.Selection) map[string]string {
	raw := make(map[string]string)
	row.Find("td[data-col]").Each(func(_ int, cell *goquery.Selection) {
		col := cell.AttrOr("data-col", "")
		if col == "" {
			return
		}
		if v := collapseWhitespace(cell.Text()); v != "" {
			raw[col] = v
		}
	})
	return raw
}

func parseScheduledDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range scheduledDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// addressPattern matches "123 Main St, Springfield, IL 62704" shapes.
var addressPattern = regexp.MustCompile(`^(.*?),\s*([^,]+),\s*([A-Z]{2})\s+(\d{5}(?:-\d{4})?)$`)

// SplitAddress decomposes a one-line address. When the shape is not
// recognized the raw string is retained and components stay null.
func SplitAddress(raw string) models.Address {
	raw = collapseWhitespace(raw)
	addr := models.Address{Raw: raw}
	if raw == "" {
		return addr
	}

	if m := addressPattern.FindStringSubmatch(raw); len(m) == 5 {
		addr.Street = m[1]
		addr.City = m[2]
		addr.State = m[3]
		addr.Zip = m[4]
	}
	return addr
}

func resolveURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
