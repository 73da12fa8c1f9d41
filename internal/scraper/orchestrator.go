package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fieldsync/internal/common"
	"github.com/ternarybob/fieldsync/internal/extraction"
	"github.com/ternarybob/fieldsync/internal/interfaces"
	"github.com/ternarybob/fieldsync/internal/models"
)

// Selectors tried in order when locating list rows; the portal has
// shipped three generations of list markup.
var listRowSelectors = []string{
	"table.workorders tbody tr",
	"tbody tr[data-wo-id]",
	"#workorders tbody tr",
}

const (
	listContainerSelector = "table.workorders, #workorders, .wo-list, .empty-state"
	pageSizeSelector      = "select[name='page_size']"
	nextPageSelector      = "a[rel='next']"
	interstitialSelector  = ".modal .btn-dismiss, button.dismiss, .announcement-close"
	equipmentTabSelector  = "a[href*='equipment'], .tab-equipment"
	dispenserSelector     = ".dispenser-card, .dispenser"
	collapsedSelector     = ".dispenser-card.collapsed .expand"
)

// Orchestrator drives an authenticated session through the list and
// detail passes and persists what it finds. Extraction itself never
// touches the browser; the orchestrator snapshots markup and hands it to
// the pure rule engine.
type Orchestrator struct {
	portal common.PortalConfig
	config common.ScraperConfig
	orders interfaces.WorkOrderStorage
	snaps  interfaces.SnapshotStorage
	retry  RetryPolicy
	logger arbor.ILogger
}

// NewOrchestrator creates a scrape orchestrator.
func NewOrchestrator(
	portal common.PortalConfig,
	config common.ScraperConfig,
	orders interfaces.WorkOrderStorage,
	snaps interfaces.SnapshotStorage,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		portal: portal,
		config: config,
		orders: orders,
		snaps:  snaps,
		retry: RetryPolicy{
			MaxAttempts: config.NavRetries,
			Backoff:     config.NavRetryBackoff,
		},
		logger: logger,
	}
}

// Run executes one full scrape for userID on an already authenticated
// driver. Row failures are isolated and counted; only a failure of the
// list pass itself, or a persistence failure, aborts the run.
func (o *Orchestrator) Run(ctx context.Context, driver interfaces.PageDriver, userID string) (*models.ScrapeStats, error) {
	stats := &models.ScrapeStats{}

	orders, err := o.scrapeList(ctx, driver, userID, stats)
	if err != nil {
		return stats, err
	}

	o.logger.Info().
		Str("user_id", userID).
		Int("candidates", stats.Candidates).
		Int("extracted", stats.Extracted).
		Int("skipped", stats.Skipped).
		Msg("List pass complete")

	for _, order := range orders {
		if err := o.scrapeDetail(ctx, driver, order); err != nil {
			// The work order still persists with whatever the list pass
			// produced; detail state stays pending.
			o.logger.Warn().
				Str("user_id", userID).
				Str("external_id", order.ExternalID).
				Err(err).
				Msg("Detail pass failed for work order")
		}

		created, err := o.orders.Upsert(ctx, order)
		if err != nil {
			return stats, models.NewPersistenceError("upsert work order "+order.ExternalID, err)
		}
		if created {
			stats.NewWorkOrders = append(stats.NewWorkOrders, order.ExternalID)
		}
	}

	stats.ItemsProcessed = stats.Extracted
	return stats, nil
}

// scrapeList walks the paginated work-order list and extracts one typed
// work order per readable row.
func (o *Orchestrator) scrapeList(ctx context.Context, driver interfaces.PageDriver, userID string, stats *models.ScrapeStats) ([]*models.WorkOrder, error) {
	listURL := o.portal.BaseURL + o.portal.WorkOrdersPath

	err := o.retry.Do(ctx, o.logger, "load work order list", func() error {
		if err := driver.Navigate(ctx, listURL); err != nil {
			return err
		}
		return driver.WaitVisible(ctx, listContainerSelector)
	})
	if err != nil {
		return nil, err
	}

	o.applyPageSize(ctx, driver)

	var orders []*models.WorkOrder
	maxPages := o.config.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	for page := 1; page <= maxPages; page++ {
		html, err := driver.OuterHTML(ctx)
		if err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, models.NewNavigationError("parse list page", err)
		}

		rows := findListRows(doc)
		if page == 1 && rows.Length() == 0 {
			if doc.Find(listContainerSelector).Length() == 0 {
				// Not an empty list, a page we do not recognize.
				return nil, models.NewNavigationError("work order list",
					fmt.Errorf("page at %s has no recognizable list container", listURL))
			}
			o.logger.Info().Str("user_id", userID).Msg("Work order list is empty")
			return nil, nil
		}

		rows.Each(func(i int, row *goquery.Selection) {
			stats.Candidates++
			order, err := extraction.WorkOrderRow(row, userID, o.portal.BaseURL)
			if err != nil {
				stats.Skipped++
				o.logger.Warn().
					Str("user_id", userID).
					Int("page", page).
					Int("row", i).
					Err(err).
					Msg("Skipping unreadable work order row")
				return
			}
			stats.Extracted++
			orders = append(orders, order)
		})

		if !o.advancePage(ctx, driver, doc, page, maxPages) {
			break
		}
	}

	return orders, nil
}

// applyPageSize requests the preferred page size. Best effort: a portal
// that dropped the control does not fail the run.
func (o *Orchestrator) applyPageSize(ctx context.Context, driver interfaces.PageDriver) {
	if o.config.PageSize <= 0 {
		return
	}
	present, err := driver.Exists(ctx, pageSizeSelector)
	if err != nil || !present {
		return
	}
	if err := driver.SelectOption(ctx, pageSizeSelector, strconv.Itoa(o.config.PageSize)); err != nil {
		o.logger.Warn().Err(err).Msg("Could not apply preferred page size")
		return
	}
	// Let the reloaded list settle before reading it.
	if err := driver.WaitVisible(ctx, listContainerSelector); err != nil {
		o.logger.Warn().Err(err).Msg("List did not settle after page size change")
	}
}

// advancePage follows the next-page link when one exists and the page
// budget allows. Returns false when pagination is done.
func (o *Orchestrator) advancePage(ctx context.Context, driver interfaces.PageDriver, doc *goquery.Document, page, maxPages int) bool {
	if page >= maxPages {
		if doc.Find(nextPageSelector).Not(".disabled").Length() > 0 {
			o.logger.Warn().Int("max_pages", maxPages).Msg("Pagination stopped at page budget")
		}
		return false
	}

	next := doc.Find(nextPageSelector).Not(".disabled")
	if next.Length() == 0 {
		return false
	}

	err := o.retry.Do(ctx, o.logger, "next list page", func() error {
		if err := driver.Click(ctx, nextPageSelector); err != nil {
			return err
		}
		return driver.WaitVisible(ctx, listContainerSelector)
	})
	if err != nil {
		o.logger.Warn().Err(err).Int("page", page).Msg("Could not advance to next list page")
		return false
	}
	return true
}

// scrapeDetail loads a work order's equipment view and attaches its
// dispensers. Unreadable dispensers are skipped per unit; zero units is
// classified rather than ignored.
func (o *Orchestrator) scrapeDetail(ctx context.Context, driver interfaces.PageDriver, order *models.WorkOrder) error {
	if order.DetailURL == "" {
		o.logger.Debug().Str("external_id", order.ExternalID).Msg("Work order has no detail URL")
		return nil
	}

	err := o.retry.Do(ctx, o.logger, "load work order detail", func() error {
		return driver.Navigate(ctx, order.DetailURL)
	})
	if err != nil {
		return err
	}

	o.dismissInterstitial(ctx, driver)
	o.openEquipmentView(ctx, driver)
	o.expandCollapsed(ctx, driver)

	html, err := driver.OuterHTML(ctx)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.NewNavigationError("parse detail page", err)
	}

	found := 0
	doc.Find(dispenserSelector).Each(func(i int, container *goquery.Selection) {
		d, err := extraction.Dispenser(container)
		if err != nil {
			o.logger.Warn().
				Str("external_id", order.ExternalID).
				Int("container", i).
				Err(err).
				Msg("Skipping unreadable dispenser")
			return
		}
		order.MergeDispenser(d)
		found++
	})

	if found > 0 {
		order.Completion = models.CompletionEquipmentScraped
	} else {
		order.Completion = extraction.ClassifyEmptyEquipment(doc)
	}

	o.archiveSnapshot(ctx, order, html)
	return nil
}

// dismissInterstitial closes announcement modals that sit over the
// detail page. Absence is the normal case.
func (o *Orchestrator) dismissInterstitial(ctx context.Context, driver interfaces.PageDriver) {
	present, err := driver.Exists(ctx, interstitialSelector)
	if err != nil || !present {
		return
	}
	if err := driver.Click(ctx, interstitialSelector); err != nil {
		o.logger.Debug().Err(err).Msg("Interstitial did not dismiss")
	}
}

// openEquipmentView switches to the equipment tab when the detail page
// does not land on it directly.
func (o *Orchestrator) openEquipmentView(ctx context.Context, driver interfaces.PageDriver) {
	present, err := driver.Exists(ctx, equipmentTabSelector)
	if err != nil || !present {
		return
	}
	if err := driver.Click(ctx, equipmentTabSelector); err != nil {
		o.logger.Debug().Err(err).Msg("Equipment tab did not open")
		return
	}
	if err := driver.WaitVisible(ctx, dispenserSelector); err != nil {
		o.logger.Debug().Err(err).Msg("Equipment view did not settle")
	}
}

// expandCollapsed clicks through collapsed dispenser cards so their form
// fields render. Bounded in case expansion does not change the DOM.
func (o *Orchestrator) expandCollapsed(ctx context.Context, driver interfaces.PageDriver) {
	for i := 0; i < 25; i++ {
		present, err := driver.Exists(ctx, collapsedSelector)
		if err != nil || !present {
			return
		}
		if err := driver.Click(ctx, collapsedSelector); err != nil {
			return
		}
	}
}

// archiveSnapshot stores the markdown rendition of the detail page.
func (o *Orchestrator) archiveSnapshot(ctx context.Context, order *models.WorkOrder, html string) {
	if !o.config.ArchiveSnapshots || o.snaps == nil {
		return
	}
	markdown, err := RenderSnapshot(html)
	if err != nil {
		o.logger.Warn().Str("external_id", order.ExternalID).Err(err).Msg("Snapshot render failed")
		return
	}
	key := SnapshotKey(order.UserID, order.ExternalID)
	if err := o.snaps.Put(ctx, key, markdown); err != nil {
		o.logger.Warn().Str("external_id", order.ExternalID).Err(err).Msg("Snapshot archive failed")
	}
}

func findListRows(doc *goquery.Document) *goquery.Selection {
	for _, selector := range listRowSelectors {
		if rows := doc.Find(selector); rows.Length() > 0 {
			return rows
		}
	}
	return doc.Find(listRowSelectors[0])
}
