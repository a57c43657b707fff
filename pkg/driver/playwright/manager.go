// Package playwright implements the page-driver capability on a real
// browser. One browser context is kept per profile (logical browsing
// identity); the resource lock upstream guarantees a context is never driven
// by two runs at once.
package playwright

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/entrhq/relay/pkg/driver"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 800
	defaultTimeoutMs      = 30000
	defaultIdleTimeout    = 30 * time.Minute
)

// Options configures how browser sessions are launched. Busy, when set,
// reports whether a resource's lock is currently held; the idle sweep skips
// those sessions.
type Options struct {
	Headless    bool
	Viewport    *pw.Size
	TimeoutMs   float64
	IdleTimeout time.Duration
	Busy        func(resourceID string) bool
}

// session is one live browser bound to a profile. lastUsedAt is written from
// the run's goroutine on every driver call and read by the idle sweep, so it
// has its own lock rather than sharing the manager's.
type session struct {
	profileID string
	browser   pw.Browser
	context   pw.BrowserContext
	page      pw.Page
	createdAt time.Time

	mu         sync.Mutex
	lastUsedAt time.Time
}

// Manager owns the playwright instance and the per-profile sessions. It
// implements driver.Provider: the orchestrator asks it for the driver bound
// to a resource after acquiring that resource's lock.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*session
	playwright  *pw.Playwright
	opts        Options
	initialized bool
}

// NewManager creates a session manager. Initialize must be called before
// any driver is requested.
func NewManager(opts Options) *Manager {
	if opts.Viewport == nil {
		opts.Viewport = &pw.Size{Width: defaultViewportWidth, Height: defaultViewportHeight}
	}
	if opts.TimeoutMs <= 0 {
		opts.TimeoutMs = defaultTimeoutMs
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	return &Manager{
		sessions: make(map[string]*session),
		opts:     opts,
	}
}

// Initialize installs and starts playwright. Driver output is discarded so
// it cannot interfere with an attached terminal UI.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	runOpts := &pw.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := pw.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	instance, err := pw.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = instance
	m.initialized = true
	return nil
}

// DriverFor returns the page driver bound to the profile, launching a
// browser session for it on first use.
func (m *Manager) DriverFor(_ context.Context, resourceID string) (driver.PageDriver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("session manager not initialized")
	}

	if s, ok := m.sessions[resourceID]; ok {
		s.touch()
		return &Driver{session: s}, nil
	}

	s, err := m.launch(resourceID)
	if err != nil {
		return nil, err
	}
	m.sessions[resourceID] = s
	return &Driver{session: s}, nil
}

// launch starts a browser, context, and page for one profile. Caller holds
// the mutex.
func (m *Manager) launch(profileID string) (*session, error) {
	browser, err := m.playwright.Chromium.Launch(pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(m.opts.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser for %s: %w", profileID, err)
	}

	browserCtx, err := browser.NewContext(pw.BrowserNewContextOptions{
		Viewport: m.opts.Viewport,
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context for %s: %w", profileID, err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page for %s: %w", profileID, err)
	}
	page.SetDefaultTimeout(m.opts.TimeoutMs)

	now := time.Now()
	return &session{
		profileID:  profileID,
		browser:    browser,
		context:    browserCtx,
		page:       page,
		createdAt:  now,
		lastUsedAt: now,
	}, nil
}

// CloseSession closes and removes one profile's browser session.
func (m *Manager) CloseSession(profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[profileID]
	if !ok {
		return fmt.Errorf("no session for profile %q", profileID)
	}
	s.close()
	delete(m.sessions, profileID)
	return nil
}

// CleanupIdle closes sessions whose last use is older than the idle timeout.
// Sessions whose resource is still held by a run are never closed, however
// long the run has been parked. Intended to run on a schedule.
func (m *Manager) CleanupIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, s := range m.sessions {
		if m.opts.Busy != nil && m.opts.Busy(id) {
			continue
		}
		if now.Sub(s.lastUsed()) > m.opts.IdleTimeout {
			s.close()
			delete(m.sessions, id)
		}
	}
}

// SessionCount returns the number of live browser sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes all sessions and stops playwright.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		s.close()
		delete(m.sessions, id)
	}

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}

func (s *session) close() {
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.context != nil {
		_ = s.context.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

func (s *session) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}
