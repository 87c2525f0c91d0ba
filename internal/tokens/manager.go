package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	api "github.com/meshbed/testbed-manager/api/v1alpha1"
	"github.com/meshbed/testbed-manager/internal/client"
)

// DefaultRefreshWindow is how close to expiry the identity token may
// get before EnsureValidToken rotates it.
const DefaultRefreshWindow = 30 * time.Minute

// ErrNoToken is returned when neither an identity nor a refresh token
// is available.
var ErrNoToken = errors.New("no token material available")

// Refresher exchanges a refresh token for a fresh pair. Implemented by
// the credential manager client.
type Refresher interface {
	Refresh(ctx context.Context, req client.RefreshRequest) (*api.Token, error)
}

// Config seeds a token manager.
type Config struct {
	// Path locates the persisted token file (JSON). Empty disables
	// persistence and keeps the pair in memory only.
	Path string

	// IDToken and RefreshToken seed the manager and take precedence
	// over a pair loaded from Path.
	IDToken      string
	RefreshToken string

	ProjectID   string
	ProjectName string
	Scope       string

	// RefreshWindow overrides DefaultRefreshWindow when positive.
	RefreshWindow time.Duration
}

// Manager keeps the identity/refresh token pair valid, rotating it
// through the credential manager and persisting rotations to disk.
// Safe for concurrent use.
type Manager struct {
	refresher Refresher
	cfg       Config

	mu    sync.Mutex
	token api.Token
}

// NewManager builds a token manager from the persisted file (when Path
// names one) and the explicit seeds.
func NewManager(refresher Refresher, cfg Config) (*Manager, error) {
	if cfg.Scope == "" {
		cfg.Scope = client.DefaultTokenScope
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = DefaultRefreshWindow
	}

	m := &Manager{refresher: refresher, cfg: cfg}
	if cfg.Path != "" {
		if err := m.load(); err != nil {
			return nil, err
		}
	}
	if cfg.IDToken != "" {
		m.token.IDToken = cfg.IDToken
	}
	if cfg.RefreshToken != "" {
		m.token.RefreshToken = cfg.RefreshToken
	}
	return m, nil
}

// Tokens returns a copy of the current pair.
func (m *Manager) Tokens() api.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// EnsureValidToken returns an identity token valid for at least the
// refresh window, rotating through the credential manager when the
// current one is missing or too close to expiry.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token.IDToken != "" && !m.nearExpiry() {
		return m.token.IDToken, nil
	}
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.token.IDToken, nil
}

// Refresh forces a rotation regardless of the current token's expiry
// and returns the fresh pair.
func (m *Manager) Refresh(ctx context.Context) (api.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.refreshLocked(ctx); err != nil {
		return api.Token{}, err
	}
	return m.token, nil
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	if m.token.RefreshToken == "" {
		return ErrNoToken
	}
	if m.refresher == nil {
		return fmt.Errorf("cannot refresh token: no credential manager configured")
	}

	fresh, err := m.refresher.Refresh(ctx, client.RefreshRequest{
		RefreshToken: m.token.RefreshToken,
		Scope:        m.cfg.Scope,
		ProjectID:    m.cfg.ProjectID,
		ProjectName:  m.cfg.ProjectName,
	})
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	previousRefresh := m.token.RefreshToken
	m.token = *fresh
	if m.token.RefreshToken == "" {
		// Some deployments rotate only the identity token.
		m.token.RefreshToken = previousRefresh
	}

	if m.cfg.Path != "" {
		if err := m.save(); err != nil {
			return err
		}
	}
	zap.S().Named("tokens").Infof("refreshed identity token, expires at %q", m.token.ExpiresAt)
	return nil
}

// nearExpiry reports whether the identity token expires inside the
// refresh window. A token whose expiry cannot be determined counts as
// expired so a rotation is attempted instead of an upstream 401.
func (m *Manager) nearExpiry() bool {
	expiry, err := tokenExpiry(m.token)
	if err != nil {
		zap.S().Named("tokens").Debugf("cannot determine token expiry: %v", err)
		return true
	}
	return time.Until(expiry) < m.cfg.RefreshWindow
}

// tokenExpiry reads the recorded expires_at when present, else the exp
// claim of the decoded JWT. The token is never verified locally;
// signature checks stay with the credential manager.
func tokenExpiry(t api.Token) (time.Time, error) {
	if t.ExpiresAt != "" {
		return time.Parse(client.TimeFormat, t.ExpiresAt)
	}
	if t.IDToken == "" {
		return time.Time{}, fmt.Errorf("token carries no expiry")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.IDToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode token claims: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token claims carry no expiry")
	}
	return exp.Time, nil
}

// load reads the persisted pair. A missing file is not an error, a
// corrupt one is.
func (m *Manager) load() error {
	raw, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}
	if err := json.Unmarshal(raw, &m.token); err != nil {
		return fmt.Errorf("failed to decode token file %s: %w", m.cfg.Path, err)
	}
	return nil
}

// save persists the pair with owner-only permissions.
func (m *Manager) save() error {
	raw, err := json.MarshalIndent(m.token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}
	if dir := filepath.Dir(m.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	if err := os.WriteFile(m.cfg.Path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
