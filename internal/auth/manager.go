// Package auth manages bearer tokens: SSO exchange, silent refresh at
// startup and an encrypted local credential store.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
)

var (
	// ErrNoCredentials means no login has happened on this device
	ErrNoCredentials = errors.NewStd("no stored credentials")
	// ErrReauthenticationRequired means the refresh token was rejected and
	// the user must log in again
	ErrReauthenticationRequired = errors.NewStd("reauthentication required")
)

// tokenExpiry reads exp from a JWT without verifying it. Verification is the
// backend's job; the client only needs to know when to refresh.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Manager owns the current credentials. Safe for concurrent use; refreshes
// are serialized.
type Manager struct {
	store     CredentialStore
	exchanger Exchanger
	leeway    time.Duration
	now       func() time.Time
	log       logger.Logger

	mu    sync.Mutex
	creds *Credentials
}

// NewManager returns a manager. leeway is how long before expiry a token is
// refreshed.
func NewManager(store CredentialStore, exchanger Exchanger, leeway time.Duration, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Global().Module("auth")
	}
	return &Manager{store: store, exchanger: exchanger, leeway: leeway, now: time.Now, log: log}
}

// SetClock replaces the time source
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Login exchanges an SSO token and persists the result
func (m *Manager) Login(ctx context.Context, ssoToken string) (*Credentials, error) {
	if ssoToken == "" {
		return nil, errors.Newf("sso token is required").
			Component("auth").
			Category(errors.CategoryValidation).
			Build()
	}

	c, err := m.exchanger.Exchange(ctx, ssoToken)
	if err != nil {
		m.log.Warn("sso exchange failed", logger.Error(err))
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(c); err != nil {
		return nil, err
	}
	m.creds = c
	m.log.Info("logged in", logger.String("subject", c.Subject), logger.Time("expires_at", c.ExpiresAt))
	return c, nil
}

// SilentRefresh loads stored credentials and refreshes them if they expire
// within the leeway. Run at startup before any network call.
func (m *Manager) SilentRefresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return err
	}
	if !m.expiringLocked() {
		return nil
	}
	return m.refreshLocked(ctx)
}

// AccessToken returns a usable token, refreshing first when it is about to
// expire
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return "", err
	}
	if m.expiringLocked() {
		if err := m.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return m.creds.AccessToken, nil
}

// Refresh forces a refresh, e.g. after the backend rejected the token
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return err
	}
	return m.refreshLocked(ctx)
}

// Logout forgets the credentials in memory and on disk
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return m.store.Clear()
}

// Current returns a copy of the loaded credentials
func (m *Manager) Current() (Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Credentials{}, false
	}
	return *m.creds, true
}

func (m *Manager) loadLocked() error {
	if m.creds != nil {
		return nil
	}
	c, err := m.store.Load()
	if err != nil {
		return err
	}
	if c.ExpiresAt.IsZero() {
		if exp, ok := tokenExpiry(c.AccessToken); ok {
			c.ExpiresAt = exp
		}
	}
	m.creds = c
	return nil
}

// expiringLocked treats an unknown expiry as still valid; the backend's 401
// triggers the refresh in that case
func (m *Manager) expiringLocked() bool {
	if m.creds.ExpiresAt.IsZero() {
		return false
	}
	return !m.now().Add(m.leeway).Before(m.creds.ExpiresAt)
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	if m.creds.RefreshToken == "" {
		return m.reauthLocked(errors.NewStd("no refresh token"))
	}

	c, err := m.exchanger.Refresh(ctx, m.creds.RefreshToken)
	if err != nil {
		// only a rejected token ends the session; outages and bad payloads keep it
		if !errors.IsCategory(err, errors.CategoryAuth) {
			return err
		}
		return m.reauthLocked(err)
	}
	if err := m.store.Save(c); err != nil {
		return err
	}
	m.creds = c
	m.log.Debug("access token refreshed", logger.Time("expires_at", c.ExpiresAt))
	return nil
}

func (m *Manager) reauthLocked(cause error) error {
	m.log.Warn("token refresh rejected, login required", logger.Error(cause))
	m.creds = nil
	if err := m.store.Clear(); err != nil {
		m.log.Warn("failed to clear credentials", logger.Error(err))
	}
	return errors.New(errors.Join(ErrReauthenticationRequired, cause)).
		Component("auth").
		Category(errors.CategoryAuth).
		Build()
}
