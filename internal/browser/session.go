package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/fieldsync/internal/common"
	"github.com/ternarybob/fieldsync/internal/models"
)

// State tracks a session through its lifecycle. Transitions only move
// forward; Cleanup is legal from any state.
type State string

const (
	StateCreated        State = "created"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateFailed         State = "failed"
	StateClosed         State = "closed"
)

// Session is a single-user automation context against the portal. It is
// not safe for concurrent use; the orchestrator drives it sequentially.
type Session struct {
	id     string
	userID string
	config common.PortalConfig
	logger arbor.ILogger

	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	limiter         *rate.Limiter

	stateMu sync.Mutex
	state   State

	cleanupOnce sync.Once
	onClose     func()
}

// ID returns the session correlation id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// Login performs exactly one authentication attempt. Retrying with the
// same credentials is the caller's decision, not the session's.
func (s *Session) Login(ctx context.Context, cred *models.Credential) error {
	s.stateMu.Lock()
	if s.state != StateCreated {
		state := s.state
		s.stateMu.Unlock()
		return models.NewAuthenticationError("login", fmt.Errorf("session in state %s cannot authenticate", state))
	}
	s.state = StateAuthenticating
	s.stateMu.Unlock()

	loginURL := s.config.BaseURL + s.config.LoginPath

	s.logger.Info().
		Str("user_id", s.userID).
		Str("url", loginURL).
		Msg("Authenticating against portal")

	err := s.run(ctx, "login", s.config.LoginTimeout,
		network.Enable(),
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(`input[name='username'], input[name='email']`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name='username'], input[name='email']`, cred.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name='password']`, cred.Password, chromedp.ByQuery),
		chromedp.Click(`button[type='submit'], input[type='submit']`, chromedp.ByQuery),
	)
	if err != nil {
		s.setState(StateFailed)
		return err
	}

	if err := s.awaitLoginOutcome(ctx); err != nil {
		s.setState(StateFailed)
		return err
	}

	s.setState(StateAuthenticated)
	s.logger.Info().Str("user_id", s.userID).Msg("Authentication succeeded")
	return nil
}

// awaitLoginOutcome polls the landing page until it resolves to success,
// a rejected-credentials marker, or the login deadline.
func (s *Session) awaitLoginOutcome(ctx context.Context) error {
	deadline := time.Now().Add(s.config.LoginTimeout)

	for time.Now().Before(deadline) {
		var location, bodyText string
		err := s.run(ctx, "login_poll", 10*time.Second,
			chromedp.Location(&location),
			chromedp.Text("body", &bodyText, chromedp.ByQuery),
		)
		if err != nil {
			return err
		}

		if marker := rejectedCredentialMarker(bodyText); marker != "" {
			return models.NewAuthenticationError("login",
				fmt.Errorf("portal rejected credentials: %s", marker))
		}

		if landedPastLogin(location, s.config.LoginPath) {
			return nil
		}

		select {
		case <-ctx.Done():
			return models.NewNavigationError("login", ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}

	return models.NewNavigationError("login",
		fmt.Errorf("timed out after %s waiting to leave login page", s.config.LoginTimeout))
}

// Markers the portal renders when a submission is rejected. Matching any
// of them is an authentication failure, never a navigation one.
var credentialRejectionMarkers = []string{
	"invalid username or password",
	"invalid credentials",
	"incorrect password",
	"account is locked",
	"login failed",
}

func rejectedCredentialMarker(bodyText string) string {
	lower := strings.ToLower(bodyText)
	for _, marker := range credentialRejectionMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}

// landedPastLogin reports whether the browser left the login surface.
func landedPastLogin(location, loginPath string) bool {
	if location == "" {
		return false
	}
	return !strings.Contains(location, loginPath)
}

// Cleanup tears down the browser and allocator. Safe to call from any
// state, any number of times, including concurrently with Shutdown.
func (s *Session) Cleanup() {
	s.cleanupOnce.Do(func() {
		s.setState(StateClosed)
		if s.browserCancel != nil {
			s.browserCancel()
		}
		if s.allocatorCancel != nil {
			s.allocatorCancel()
		}
		if s.onClose != nil {
			s.onClose()
		}
		s.logger.Debug().Str("session_id", s.id).Msg("Browser session closed")
	})
}

// Navigate loads url and waits for the document to settle. Navigation is
// paced by the configured delay so the portal never sees a request burst.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return models.NewNavigationError("navigate", err)
	}
	return s.run(ctx, "navigate "+url, s.config.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// WaitVisible blocks until the selector is rendered or the operation
// deadline passes.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, "wait "+selector, s.config.NavigationTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
	)
}

// Click clicks the first element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, "click "+selector, s.config.NavigationTimeout,
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// SetValue fills an input with value.
func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	return s.run(ctx, "set "+selector, s.config.NavigationTimeout,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
}

// SelectOption picks an option on a select element and fires its change
// event, which the portal's list pages listen on to reload.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(
		`(function() {
			var el = document.querySelector(%q);
			if (!el) { return false; }
			el.value = %q;
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		})()`, selector, value)

	var applied bool
	if err := s.run(ctx, "select "+selector, s.config.NavigationTimeout,
		chromedp.Evaluate(script, &applied),
	); err != nil {
		return err
	}
	if !applied {
		return models.NewNavigationError("select "+selector, fmt.Errorf("selector matched no element"))
	}
	return nil
}

// Exists reports whether selector matches anything without waiting for
// it to appear.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	var found bool
	if err := s.run(ctx, "exists "+selector, 10*time.Second,
		chromedp.Evaluate(script, &found),
	); err != nil {
		return false, err
	}
	return found, nil
}

// OuterHTML returns the rendered markup of the whole document.
func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, "html", s.config.NavigationTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", err
	}
	return html, nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, "location", 10*time.Second,
		chromedp.Location(&location),
	); err != nil {
		return "", err
	}
	return location, nil
}

// run executes chromedp actions under the session's browser context with
// an operation deadline, wiring the caller's cancellation through. Every
// failure surfaces as a typed navigation error.
func (s *Session) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	if s.State() == StateClosed {
		return models.NewNavigationError(op, fmt.Errorf("session is closed"))
	}

	opCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.NewNavigationError(op, fmt.Errorf("timed out after %s: %w", timeout, err))
		}
		if ctx.Err() != nil {
			return models.NewNavigationError(op, ctx.Err())
		}
		return models.NewNavigationError(op, err)
	}
	return nil
}
