// Package session owns the portal login. It reuses an authenticated session
// for a validity window, logs in with configured credentials otherwise, and
// falls back to self-registration when the portal only offers a sign-up form.
package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go-portal-harvester/internal/authsignal"
	"go-portal-harvester/internal/browser"
	"go-portal-harvester/internal/config"
	apperrors "go-portal-harvester/internal/errors"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/state"
	"go-portal-harvester/internal/telemetry"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	BaseURL           string
	LoginPath         string
	ProtectedPrefixes []string
	Credentials       []config.Credential
	EmailSelector     string
	PasswordSelector  string
	SubmitSelector    string
	Registration      config.RegistrationConfig
	//SeedCookiesPath is an operator-exported cookie file probed before logging in
	SeedCookiesPath string
	Validity        time.Duration
}

// OptionsFromConfig maps the loaded config onto session options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:           cfg.Portal.BaseURL,
		LoginPath:         cfg.Login.Path,
		ProtectedPrefixes: cfg.Portal.ProtectedPrefixes,
		Credentials:       cfg.Login.Credentials,
		EmailSelector:     cfg.Login.EmailSelector,
		PasswordSelector:  cfg.Login.PasswordSelector,
		SubmitSelector:    cfg.Login.SubmitSelector,
		Registration:      cfg.Registration,
		SeedCookiesPath:   cfg.Login.CookiesPath,
		Validity:          cfg.Timing.LoginValidity,
	}
}

// Handle reports the session state a caller can rely on for one path.
type Handle struct {
	Authenticated bool
	//Reused is true when no login happened for this call
	Reused bool
}

type Manager struct {
	opts    Options
	store   state.Store
	log     logger.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	mu      sync.Mutex
	state   models.SessionState
	loaded  bool
	applied browser.Renderer
	group   singleflight.Group
}

func NewManager(opts Options, store state.Store, log logger.Logger, metrics *telemetry.Metrics) *Manager {
	if opts.Validity <= 0 {
		opts.Validity = 2 * time.Hour
	}
	return &Manager{
		opts:    opts,
		store:   store,
		log:     log.With(logger.String("component", "session")),
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// IsProtected reports whether path needs a logged-in session.
func (m *Manager) IsProtected(path string) bool {
	for _, p := range m.opts.ProtectedPrefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// State returns a copy of the current session state.
func (m *Manager) State(ctx context.Context) models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)
	s := m.state
	s.Cookies = append([]models.Cookie(nil), m.state.Cookies...)
	return s
}

// EnsureSession makes sure r carries a valid session before a protected path
// is visited. Public paths never trigger a login. The returned error is an
// AUTH_FAILURE; callers continue without authentication.
func (m *Manager) EnsureSession(ctx context.Context, r browser.Renderer, path string) (*Handle, error) {
	m.mu.Lock()
	m.loadLocked(ctx)
	valid := m.validLocked()

	if !m.IsProtected(path) {
		if valid {
			m.applyLocked(ctx, r)
		}
		m.mu.Unlock()
		return &Handle{Authenticated: valid, Reused: true}, nil
	}

	if valid {
		m.applyLocked(ctx, r)
		m.mu.Unlock()
		m.log.Debug("Reusing session", logger.String("path", path))
		return &Handle{Authenticated: true, Reused: true}, nil
	}
	m.mu.Unlock()

	_, err, _ := m.group.Do("login", func() (any, error) {
		return nil, m.login(ctx, r, path)
	})
	if err != nil {
		return &Handle{}, err
	}
	//callers that waited on another caller's login still need its cookies
	m.mu.Lock()
	m.applyLocked(ctx, r)
	m.mu.Unlock()
	return &Handle{Authenticated: true}, nil
}

// Invalidate drops the session, e.g. after an unexpected redirect to login.
func (m *Manager) Invalidate(ctx context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)
	if !m.state.Authenticated {
		return
	}
	m.state.Authenticated = false
	m.applied = nil
	m.persistLocked(ctx)
	m.log.Warn("Session invalidated", logger.String("reason", reason))
}

func (m *Manager) validLocked() bool {
	return m.state.Authenticated && m.now().Sub(m.state.LastLoginAt) < m.opts.Validity
}

func (m *Manager) loadLocked(ctx context.Context) {
	if m.loaded || m.store == nil {
		m.loaded = true
		return
	}
	m.loaded = true
	s, err := m.store.LoadSession(ctx)
	if err != nil {
		m.log.Warn("Could not load session state, starting fresh", logger.Error(err))
		return
	}
	if s != nil {
		m.state = *s
	}
}

func (m *Manager) persistLocked(ctx context.Context) {
	if m.store == nil {
		return
	}
	s := m.state
	if err := m.store.SaveSession(ctx, &s); err != nil {
		m.log.Warn("Could not persist session state", logger.Error(err))
	}
}

// applyLocked copies the cached cookies into a renderer that has not seen them
func (m *Manager) applyLocked(ctx context.Context, r browser.Renderer) {
	if r == nil || m.applied == r || len(m.state.Cookies) == 0 {
		return
	}
	if err := r.SetCookies(ctx, m.state.Cookies); err != nil {
		m.log.Warn("Could not apply session cookies", logger.Error(err))
		return
	}
	m.applied = r
}

func (m *Manager) adopt(ctx context.Context, r browser.Renderer, how string) {
	cookies, err := r.Cookies(ctx)
	if err != nil {
		m.log.Warn("Could not read cookies after login", logger.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = models.SessionState{
		Authenticated: true,
		Cookies:       cookies,
		LastLoginAt:   m.now(),
	}
	m.applied = r
	m.persistLocked(ctx)
	m.metrics.LoginAttempt(how)
	m.log.Info("Session established", logger.String("via", how), logger.Int("cookies", len(cookies)))
}

func (m *Manager) login(ctx context.Context, r browser.Renderer, path string) error {
	if m.probeSeedCookies(ctx, r, path) {
		m.adopt(ctx, r, "seed_cookies")
		return nil
	}

	attempts := m.opts.Credentials
	if len(attempts) == 0 && m.opts.Registration.Enabled {
		//no credentials: the login page may still offer sign-up
		attempts = []config.Credential{{}}
	}
	if len(attempts) == 0 {
		m.metrics.LoginAttempt("no_credentials")
		return apperrors.AuthFailure("no credentials configured", nil)
	}

	loginURL := m.resolve(m.opts.LoginPath)
	var lastErr error
	for i, cred := range attempts {
		if err := ctx.Err(); err != nil {
			return apperrors.AuthFailure("login cancelled", err)
		}

		how, err := m.attempt(ctx, r, loginURL, cred)
		if err == nil {
			m.adopt(ctx, r, how)
			return nil
		}
		lastErr = err
		m.metrics.LoginAttempt("failure")
		m.log.Warn("Login attempt failed",
			logger.Int("attempt", i+1),
			logger.Int("of", len(attempts)),
			logger.Error(err))
		if s, ok := r.(browser.Screenshotter); ok {
			_ = s.Screenshot(fmt.Sprintf("login_failed_%d", i+1), "Login attempt failed")
		}
	}

	m.mu.Lock()
	m.state.Authenticated = false
	m.persistLocked(ctx)
	m.mu.Unlock()
	return apperrors.AuthFailure(fmt.Sprintf("all %d login attempts failed", len(attempts)), lastErr)
}

// attempt runs one credential through the login page and returns how the
// session was obtained.
func (m *Manager) attempt(ctx context.Context, r browser.Renderer, loginURL string, cred config.Credential) (string, error) {
	page, err := r.Navigate(ctx, loginURL)
	if err != nil {
		return "", fmt.Errorf("open login page: %w", err)
	}

	if m.opts.Registration.Enabled && authsignal.LooksLikeRegistration(page.HTML) {
		if err := m.register(ctx, r, page.HTML); err != nil {
			return "", fmt.Errorf("self-registration: %w", err)
		}
		return "registration", nil
	}

	if authsignal.Classify(page.HTML) == authsignal.Authenticated && !authsignal.IsLoginURL(page.URL, m.opts.LoginPath) {
		return "already_authenticated", nil
	}

	if cred.Email == "" {
		return "", fmt.Errorf("login form shown but no credential available")
	}

	if err := r.Type(ctx, m.opts.EmailSelector, cred.Email); err != nil {
		return "", fmt.Errorf("fill email: %w", err)
	}
	if err := r.Type(ctx, m.opts.PasswordSelector, cred.Password); err != nil {
		return "", fmt.Errorf("fill password: %w", err)
	}
	if err := r.Click(ctx, m.opts.SubmitSelector); err != nil {
		return "", fmt.Errorf("submit login: %w", err)
	}

	after, err := r.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("read page after login: %w", err)
	}

	switch authsignal.Classify(after.HTML) {
	case authsignal.Authenticated:
		return "credentials", nil
	case authsignal.Unknown:
		//no markers either way: leaving the login page counts as success
		if !authsignal.IsLoginURL(after.URL, m.opts.LoginPath) {
			return "credentials", nil
		}
	}
	return "", fmt.Errorf("still not authenticated after submit (at %s)", after.URL)
}

// probeSeedCookies applies an exported cookie file and checks whether the
// protected page then renders as logged in.
func (m *Manager) probeSeedCookies(ctx context.Context, r browser.Renderer, path string) bool {
	cookies, err := browser.LoadCookies(m.opts.SeedCookiesPath)
	if err != nil {
		m.log.Warn("Could not load seed cookies", logger.String("path", m.opts.SeedCookiesPath), logger.Error(err))
		return false
	}
	if len(cookies) == 0 {
		return false
	}
	if err := r.SetCookies(ctx, cookies); err != nil {
		m.log.Warn("Could not apply seed cookies", logger.Error(err))
		return false
	}

	page, err := r.Navigate(ctx, m.resolve(path))
	if err != nil {
		m.log.Debug("Seed cookie probe failed", logger.Error(err))
		return false
	}
	if authsignal.IsLoginURL(page.URL, m.opts.LoginPath) {
		return false
	}
	return authsignal.Classify(page.HTML) == authsignal.Authenticated
}

func (m *Manager) resolve(path string) string {
	base, err := url.Parse(m.opts.BaseURL)
	if err != nil {
		return m.opts.BaseURL + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return m.opts.BaseURL + path
	}
	return base.ResolveReference(ref).String()
}
