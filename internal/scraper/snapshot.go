package scraper

import (
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/ternarybob/fieldsync/internal/models"
)

// RenderSnapshot converts a detail page's markup to markdown for the
// archive. Markdown survives portal redesigns better than raw HTML and
// stays readable when pulled out for debugging.
func RenderSnapshot(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to render snapshot markdown: %w", err)
	}
	return markdown, nil
}

// SnapshotKey addresses the latest archived detail page for a work order.
func SnapshotKey(userID, externalID string) string {
	return "snapshot:" + models.WorkOrderKey(userID, externalID)
}
