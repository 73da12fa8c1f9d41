package scraper

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/fieldsync/internal/common"
	"github.com/ternarybob/fieldsync/internal/models"
)

const (
	testBaseURL  = "https://portal.example.com"
	testListPath = "/workorders"
	testListURL  = testBaseURL + testListPath
)

// fakeDriver serves canned pages by URL and simulates clicks through a
// per-page next map. It never talks to a browser.
type fakeDriver struct {
	pages    map[string]string // url -> markup
	nextPage map[string]string // url -> url reached by clicking next
	failNav  map[string]int    // url -> remaining transient failures
	current  string
	navCount int
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.navCount++
	if d.failNav[url] > 0 {
		d.failNav[url]--
		return models.NewNavigationError("navigate "+url, fmt.Errorf("connection reset"))
	}
	if _, ok := d.pages[url]; !ok {
		return models.NewNavigationError("navigate "+url, fmt.Errorf("no such page"))
	}
	d.current = url
	return nil
}

func (d *fakeDriver) WaitVisible(ctx context.Context, selector string) error { return nil }

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	if selector == nextPageSelector {
		next, ok := d.nextPage[d.current]
		if !ok {
			return models.NewNavigationError("click next", fmt.Errorf("no next page"))
		}
		d.current = next
	}
	return nil
}

func (d *fakeDriver) SetValue(ctx context.Context, selector, value string) error     { return nil }
func (d *fakeDriver) SelectOption(ctx context.Context, selector, value string) error { return nil }

func (d *fakeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.pages[d.current]))
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (d *fakeDriver) OuterHTML(ctx context.Context) (string, error) {
	return d.pages[d.current], nil
}

func (d *fakeDriver) Location(ctx context.Context) (string, error) { return d.current, nil }

type memOrders struct {
	orders map[string]*models.WorkOrder
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*models.WorkOrder)}
}

func (m *memOrders) Upsert(ctx context.Context, order *models.WorkOrder) (bool, error) {
	key := order.Key()
	_, exists := m.orders[key]
	cp := *order
	m.orders[key] = &cp
	return !exists, nil
}

func (m *memOrders) Get(ctx context.Context, userID, externalID string) (*models.WorkOrder, error) {
	o, ok := m.orders[models.WorkOrderKey(userID, externalID)]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return o, nil
}

func (m *memOrders) ListByUser(ctx context.Context, userID string) ([]*models.WorkOrder, error) {
	var out []*models.WorkOrder
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) CountByUser(ctx context.Context, userID string) (int, error) {
	list, _ := m.ListByUser(ctx, userID)
	return len(list), nil
}

type memSnaps struct {
	snaps map[string]string
}

func (m *memSnaps) Put(ctx context.Context, key, markdown string) error {
	if m.snaps == nil {
		m.snaps = make(map[string]string)
	}
	m.snaps[key] = markdown
	return nil
}

func (m *memSnaps) Get(ctx context.Context, key string) (string, error) {
	return m.snaps[key], nil
}

func listRow(id, site string) string {
	return fmt.Sprintf(`<tr data-wo-id=%q>
		<td data-col="wo"><a href="/workorder/%s">WO-%s</a></td>
		<td data-col="site">%s</td>
		<td data-col="address">10 Depot Rd, Springfield, IL 62704</td>
	</tr>`, id, id, id, site)
}

func listPage(rows string, withNext bool) string {
	next := ""
	if withNext {
		next = `<a rel="next" href="#">Next</a>`
	}
	return fmt.Sprintf(`<html><body>
		<table class="workorders"><tbody>%s</tbody></table>%s
	</body></html>`, rows, next)
}

func detailPage(dispensers string) string {
	return fmt.Sprintf(`<html><body><div class="equipment">%s</div></body></html>`, dispensers)
}

func newTestOrchestrator(orders *memOrders, snaps *memSnaps) *Orchestrator {
	portal := common.PortalConfig{
		BaseURL:        testBaseURL,
		WorkOrdersPath: testListPath,
	}
	cfg := common.ScraperConfig{
		PageSize:         100,
		MaxPages:         5,
		NavRetries:       2,
		NavRetryBackoff:  time.Millisecond,
		ArchiveSnapshots: snaps != nil,
	}
	o := NewOrchestrator(portal, cfg, orders, nil, common.GetLogger())
	if snaps != nil {
		o.snaps = snaps
	}
	return o
}

func TestRunFullScrape(t *testing.T) {
	rows := listRow("48291", "North Fuel Stop") +
		listRow("48292", "East Depot") +
		`<tr><td>no identity here</td></tr>`

	driver := &fakeDriver{
		pages: map[string]string{
			testListURL: listPage(rows, false),
			testBaseURL + "/workorder/48291": detailPage(`
				<div class="dispenser-card" data-dispenser="1/2">
					<dl><dt>Make</dt><dd>Gilbarco</dd><dt>Grades</dt><dd>1,2</dd></dl>
				</div>`),
			testBaseURL + "/workorder/48292": detailPage(
				`<div class="empty-state">No equipment configured for this location.</div>`),
		},
	}

	orders := newMemOrders()
	snaps := &memSnaps{}
	o := newTestOrchestrator(orders, snaps)

	stats, err := o.Run(context.Background(), driver, "user-1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.Candidates != 3 || stats.Extracted != 2 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want candidates 3, extracted 2, skipped 1", stats)
	}
	if stats.Extracted+stats.Skipped != stats.Candidates {
		t.Errorf("extracted+skipped != candidates: %+v", stats)
	}
	if stats.ItemsProcessed != 2 {
		t.Errorf("ItemsProcessed = %d, want 2", stats.ItemsProcessed)
	}
	if len(stats.NewWorkOrders) != 2 {
		t.Errorf("NewWorkOrders = %v, want both ids", stats.NewWorkOrders)
	}

	got, err := orders.Get(context.Background(), "user-1", "48291")
	if err != nil {
		t.Fatalf("work order 48291 not persisted: %v", err)
	}
	if got.Completion != models.CompletionEquipmentScraped {
		t.Errorf("48291 completion = %s, want equipment_scraped", got.Completion)
	}
	if len(got.Dispensers) != 1 || got.Dispensers[0].Number != "1/2" {
		t.Errorf("48291 dispensers = %+v", got.Dispensers)
	}

	empty, err := orders.Get(context.Background(), "user-1", "48292")
	if err != nil {
		t.Fatalf("work order 48292 not persisted: %v", err)
	}
	if empty.Completion != models.CompletionEquipmentEmpty {
		t.Errorf("48292 completion = %s, want equipment_empty", empty.Completion)
	}

	if _, ok := snaps.snaps[SnapshotKey("user-1", "48291")]; !ok {
		t.Error("expected a markdown snapshot for 48291")
	}
}

func TestRunEmptyList(t *testing.T) {
	driver := &fakeDriver{
		pages: map[string]string{
			testListURL: listPage("", false),
		},
	}

	o := newTestOrchestrator(newMemOrders(), nil)
	stats, err := o.Run(context.Background(), driver, "user-1")
	if err != nil {
		t.Fatalf("empty list should be a successful run, got %v", err)
	}
	if stats.Candidates != 0 || stats.ItemsProcessed != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
}

func TestRunUnrecognizableListPage(t *testing.T) {
	driver := &fakeDriver{
		pages: map[string]string{
			testListURL: `<html><body><h1>503 Service Unavailable</h1></body></html>`,
		},
	}

	o := newTestOrchestrator(newMemOrders(), nil)
	_, err := o.Run(context.Background(), driver, "user-1")
	if err == nil {
		t.Fatal("expected error for unrecognizable list page")
	}
	if !models.IsNavigation(err) {
		t.Errorf("expected navigation error, got %v", err)
	}
}

func TestRunPaginates(t *testing.T) {
	page2URL := testListURL + "?page=2"
	driver := &fakeDriver{
		pages: map[string]string{
			testListURL: listPage(listRow("100", "Site A"), true),
			page2URL:    listPage(listRow("200", "Site B"), false),
		},
		nextPage: map[string]string{
			testListURL: page2URL,
		},
	}

	orders := newMemOrders()
	o := newTestOrchestrator(orders, nil)
	// Rows on page two link to detail pages the fake does not serve; the
	// detail failure is isolated and the orders still persist.
	stats, err := o.Run(context.Background(), driver, "user-1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Extracted != 2 {
		t.Errorf("Extracted = %d, want 2 across pages", stats.Extracted)
	}
	if n, _ := orders.CountByUser(context.Background(), "user-1"); n != 2 {
		t.Errorf("persisted %d orders, want 2", n)
	}
}

func TestRunDetailFailureLeavesPending(t *testing.T) {
	driver := &fakeDriver{
		pages: map[string]string{
			testListURL: listPage(listRow("48291", "North Fuel Stop"), false),
		},
	}

	orders := newMemOrders()
	o := newTestOrchestrator(orders, nil)
	stats, err := o.Run(context.Background(), driver, "user-1")
	if err != nil {
		t.Fatalf("detail failure must not abort the run: %v", err)
	}
	if stats.Extracted != 1 {
		t.Errorf("Extracted = %d, want 1", stats.Extracted)
	}

	got, err := orders.Get(context.Background(), "user-1", "48291")
	if err != nil {
		t.Fatalf("order not persisted after detail failure: %v", err)
	}
	if got.Completion != models.CompletionPending {
		t.Errorf("completion = %s, want pending", got.Completion)
	}
}

func TestRunRetriesTransientListFailure(t *testing.T) {
	driver := &fakeDriver{
		pages: map[string]string{
			testListURL: listPage(listRow("48291", "North Fuel Stop"), false),
		},
		failNav: map[string]int{
			testListURL: 1,
		},
	}

	o := newTestOrchestrator(newMemOrders(), nil)
	stats, err := o.Run(context.Background(), driver, "user-1")
	if err != nil {
		t.Fatalf("transient failure within retry budget should recover: %v", err)
	}
	if stats.Extracted != 1 {
		t.Errorf("Extracted = %d, want 1", stats.Extracted)
	}
}

func TestRetryGivesUpOnNonNavigationError(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), common.GetLogger(), "op", func() error {
		calls++
		return models.NewExtractionError("op", fmt.Errorf("bad markup"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-navigation error retried %d times, want 1 attempt", calls)
	}
}
