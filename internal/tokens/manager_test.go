package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/meshbed/testbed-manager/api/v1alpha1"
	"github.com/meshbed/testbed-manager/internal/client"
)

type fakeRefresher struct {
	calls   int
	lastReq client.RefreshRequest
	token   *api.Token
	err     error
}

func (f *fakeRefresher) Refresh(_ context.Context, req client.RefreshRequest) (*api.Token, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func expiresAt(d time.Duration) string {
	return time.Now().Add(d).Format(client.TimeFormat)
}

func signedToken(t *testing.T, d time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(d).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestEnsureValidTokenKeepsFreshToken(t *testing.T) {
	refresher := &fakeRefresher{}
	manager, err := NewManager(refresher, Config{
		IDToken:      "id-current",
		RefreshToken: "rt-current",
	})
	require.NoError(t, err)
	manager.token.ExpiresAt = expiresAt(2 * time.Hour)

	got, err := manager.EnsureValidToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "id-current", got)
	assert.Equal(t, 0, refresher.calls)
}

func TestEnsureValidTokenRefreshesNearExpiry(t *testing.T) {
	refresher := &fakeRefresher{
		token: &api.Token{
			IDToken:      "id-new",
			RefreshToken: "rt-new",
			ExpiresAt:    expiresAt(4 * time.Hour),
		},
	}
	manager, err := NewManager(refresher, Config{
		IDToken:      "id-stale",
		RefreshToken: "rt-current",
		ProjectID:    "proj-1",
	})
	require.NoError(t, err)
	manager.token.ExpiresAt = expiresAt(10 * time.Minute)

	got, err := manager.EnsureValidToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "id-new", got)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, "rt-current", refresher.lastReq.RefreshToken)
	assert.Equal(t, "proj-1", refresher.lastReq.ProjectID)
	assert.Equal(t, "all", refresher.lastReq.Scope)
	assert.Equal(t, "rt-new", manager.Tokens().RefreshToken)
}

func TestEnsureValidTokenReadsJWTExpiry(t *testing.T) {
	refresher := &fakeRefresher{}
	manager, err := NewManager(refresher, Config{
		IDToken:      signedToken(t, 3*time.Hour),
		RefreshToken: "rt-current",
	})
	require.NoError(t, err)

	_, err = manager.EnsureValidToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, refresher.calls)
}

func TestEnsureValidTokenTreatsOpaqueTokenAsExpired(t *testing.T) {
	refresher := &fakeRefresher{
		token: &api.Token{IDToken: "id-new", ExpiresAt: expiresAt(4 * time.Hour)},
	}
	manager, err := NewManager(refresher, Config{
		IDToken:      "not-a-jwt",
		RefreshToken: "rt-current",
	})
	require.NoError(t, err)

	got, err := manager.EnsureValidToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "id-new", got)
	assert.Equal(t, 1, refresher.calls)
	// the reply carried no refresh token, the previous one stays
	assert.Equal(t, "rt-current", manager.Tokens().RefreshToken)
}

func TestEnsureValidTokenWithoutMaterial(t *testing.T) {
	manager, err := NewManager(&fakeRefresher{}, Config{})
	require.NoError(t, err)

	_, err = manager.EnsureValidToken(context.Background())

	assert.ErrorIs(t, err, ErrNoToken)
}

func TestRefreshFailurePropagates(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("revoked")}
	manager, err := NewManager(refresher, Config{RefreshToken: "rt-dead"})
	require.NoError(t, err)

	_, err = manager.Refresh(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to refresh token")
}

func TestManagerPersistsRotations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	refresher := &fakeRefresher{
		token: &api.Token{
			IDToken:      "id-new",
			RefreshToken: "rt-new",
			ExpiresAt:    expiresAt(4 * time.Hour),
		},
	}
	manager, err := NewManager(refresher, Config{
		Path:         path,
		RefreshToken: "rt-seed",
	})
	require.NoError(t, err)

	_, err = manager.Refresh(context.Background())
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored api.Token
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, "id-new", stored.IDToken)
	assert.Equal(t, "rt-new", stored.RefreshToken)

	// a new manager picks the rotated pair back up
	reloaded, err := NewManager(refresher, Config{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "rt-new", reloaded.Tokens().RefreshToken)
}

func TestManagerSeedsOverrideStoredPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	stored, err := json.Marshal(api.Token{IDToken: "id-old", RefreshToken: "rt-old"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, stored, 0o600))

	manager, err := NewManager(&fakeRefresher{}, Config{
		Path:         path,
		RefreshToken: "rt-explicit",
	})
	require.NoError(t, err)

	pair := manager.Tokens()
	assert.Equal(t, "id-old", pair.IDToken)
	assert.Equal(t, "rt-explicit", pair.RefreshToken)
}

func TestManagerRejectsCorruptTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewManager(&fakeRefresher{}, Config{Path: path})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode token file")
}

func TestManagerMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "tokens.json")

	manager, err := NewManager(&fakeRefresher{}, Config{Path: path})

	require.NoError(t, err)
	assert.Empty(t, manager.Tokens().IDToken)
}
