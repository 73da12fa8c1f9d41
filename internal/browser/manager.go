package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/fieldsync/internal/common"
	"github.com/ternarybob/fieldsync/internal/interfaces"
)

// Manager creates one isolated browser session per run. Unlike a shared
// pool, every session gets its own allocator so nothing leaks between
// users.
type Manager struct {
	config common.PortalConfig
	logger arbor.ILogger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a browser session manager
func NewManager(config common.PortalConfig, logger arbor.ILogger) *Manager {
	return &Manager{
		config:   config,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// NewSession allocates an isolated automation context for userID and
// verifies it responds before handing it out. It does not authenticate.
func (m *Manager) NewSession(ctx context.Context, userID string) (interfaces.BrowserSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("session manager is shut down")
	}
	m.mu.Unlock()

	startTime := time.Now()
	sessionID := common.NewSessionID()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.config.Headless),
		chromedp.Flag("disable-gpu", m.config.DisableGPU),
		chromedp.Flag("no-sandbox", m.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(m.config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	session := &Session{
		id:              sessionID,
		userID:          userID,
		config:          m.config,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		limiter:         rate.NewLimiter(rate.Every(m.config.NavigationDelay), 1),
		state:           StateCreated,
		logger:          m.logger.WithCorrelationId(sessionID),
		onClose:         func() { m.release(sessionID) },
	}

	// Startup probe: a session that cannot reach about:blank is never
	// handed to the orchestrator.
	probeCtx, probeCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		session.Cleanup()
		return nil, fmt.Errorf("browser session failed startup probe: %w", err)
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	m.logger.Debug().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Int64("startup_ms", time.Since(startTime).Milliseconds()).
		Msg("Browser session created")

	return session, nil
}

// release drops a session from the live set after its cleanup ran.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Shutdown cleans up any sessions still alive. Cleanup is idempotent, so
// racing with a session's own deferred cleanup is harmless.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	m.closed = true
	remaining := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		remaining = append(remaining, s)
	}
	m.mu.Unlock()

	if len(remaining) == 0 {
		return nil
	}

	m.logger.Info().Int("count", len(remaining)).Msg("Shutting down leftover browser sessions")

	done := make(chan struct{})
	go func() {
		for _, s := range remaining {
			s.Cleanup()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		m.logger.Warn().Msg("Browser session shutdown timed out")
	}

	return nil
}
