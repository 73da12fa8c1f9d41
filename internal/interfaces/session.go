package interfaces

import (
	"context"

	"github.com/ternarybob/fieldsync/internal/models"
)

// PageDriver is the navigation surface the orchestrator sees. Every
// operation carries a mandatory timeout inside the implementation; an
// operation that exceeds it fails with a NavigationError rather than
// hanging.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	// Exists reports element presence without waiting for it.
	Exists(ctx context.Context, selector string) (bool, error)
	OuterHTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
}

// BrowserSession is one isolated automation context for a single run.
// Cleanup is idempotent and must run even when login or extraction failed.
type BrowserSession interface {
	PageDriver

	// Login submits credentials and classifies the outcome. It makes one
	// attempt; retry policy belongs to the caller.
	Login(ctx context.Context, cred *models.Credential) error
	Cleanup()
}

// SessionManager creates isolated browser sessions. Sessions are never
// shared across concurrent runs, even for the same user.
type SessionManager interface {
	NewSession(ctx context.Context, userID string) (BrowserSession, error)
	Shutdown() error
}
