package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/leafwise/leafwise-go/core"
)

// SessionManager owns the one process-wide session. It orchestrates
// login/register/logout/refresh against the identity provider and the
// backend bridge, persists through the credential store, and hands out
// read-only snapshots to everything else.
//
// Stable states keep the invariant: user and access token are both present
// or both absent. A session violating it is torn down as a forced logout.
type SessionManager struct {
	store    core.CredentialStore
	provider core.IdentityProvider
	bridge   *IdentityBridge
	log      *zap.Logger

	mu      sync.RWMutex
	session core.Session

	// Concurrent Refresh calls collapse onto one wire request and share
	// its outcome instead of racing.
	refreshGroup singleflight.Group
}

func NewSessionManager(store core.CredentialStore, provider core.IdentityProvider, bridge *IdentityBridge, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{
		store:    store,
		provider: provider,
		bridge:   bridge,
		log:      log,
		session:  core.Session{IsLoading: true},
	}
}

// Snapshot returns a read-only copy of the current session.
func (sm *SessionManager) Snapshot() core.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	snapshot := sm.session
	if sm.session.User != nil {
		user := *sm.session.User
		snapshot.User = &user
	}
	return snapshot
}

// AccessToken returns the current bearer token, empty when anonymous.
func (sm *SessionManager) AccessToken() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.session.AccessToken
}

// Load hydrates the session from the credential store. All three keys
// present means a restored authenticated session; anything less is treated
// as absent and any partial leftovers are swept so no torn state survives.
// Either way the session leaves its loading state in one pass.
func (sm *SessionManager) Load(ctx context.Context) error {
	accessToken, errAccess := sm.store.Get(ctx, core.KeyAccessToken)
	refreshToken, errRefresh := sm.store.Get(ctx, core.KeyRefreshToken)
	userData, errUser := sm.store.Get(ctx, core.KeyUserData)

	for _, err := range []error{errAccess, errRefresh, errUser} {
		if err != nil && !errors.Is(err, core.ErrKeyNotFound) {
			sm.setSession(core.Session{})
			return fmt.Errorf("failed to read credential store: %w", err)
		}
	}

	if accessToken == "" || refreshToken == "" || userData == "" {
		sm.sweepStore(ctx)
		sm.setSession(core.Session{})
		sm.log.Debug("no stored session, starting anonymous")
		return nil
	}

	var user core.User
	if err := json.Unmarshal([]byte(userData), &user); err != nil {
		// Unreadable user data is a torn state: re-authenticate.
		sm.sweepStore(ctx)
		sm.setSession(core.Session{})
		sm.log.Warn("stored user data unreadable, cleared session", zap.Error(err))
		return nil
	}

	sm.setSession(core.Session{
		User:         &user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
	sm.log.Info("session restored", zap.String("user_id", user.ID))
	return nil
}

// Login authenticates against the identity provider, exchanges the
// federated token with the backend, and persists the resulting session.
func (sm *SessionManager) Login(ctx context.Context, email, password string) error {
	federatedToken, err := sm.provider.SignIn(ctx, email, password)
	if err != nil {
		return recoverProviderError(err)
	}
	return sm.establish(ctx, federatedToken, "")
}

// Register creates the account at the identity provider, then establishes
// a session exactly like Login, passing the profile name along so the
// backend can create its user record.
func (sm *SessionManager) Register(ctx context.Context, email, password, fullName string) error {
	federatedToken, err := sm.provider.SignUp(ctx, email, password)
	if err != nil {
		return recoverProviderError(err)
	}
	return sm.establish(ctx, federatedToken, fullName)
}

func (sm *SessionManager) establish(ctx context.Context, federatedToken, fullName string) error {
	result, err := sm.bridge.Exchange(ctx, federatedToken, fullName)
	if err != nil {
		return err
	}

	if err := sm.persist(ctx, result.Tokens, result.User); err != nil {
		return err
	}

	sm.setSession(core.Session{
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	})
	sm.log.Info("session established", zap.String("user_id", result.User.ID))
	return nil
}

// Refresh replaces both tokens using the stored refresh token. It is only
// ever invoked on demand (the analyze client's 401 handling or
// EnsureFresh), never on a timer. Failure forces a logout; concurrent
// callers share one outcome.
func (sm *SessionManager) Refresh(ctx context.Context) error {
	_, err, _ := sm.refreshGroup.Do("refresh", func() (any, error) {
		return nil, sm.refreshOnce(ctx)
	})
	return err
}

func (sm *SessionManager) refreshOnce(ctx context.Context) error {
	sm.mu.RLock()
	refreshToken := sm.session.RefreshToken
	user := sm.session.User
	sm.mu.RUnlock()

	if refreshToken == "" || user == nil {
		return core.ErrNoRefreshToken
	}

	pair, err := sm.bridge.Refresh(ctx, refreshToken)
	if err != nil {
		sm.log.Warn("token refresh failed, forcing logout", zap.Error(err))
		sm.Logout(ctx)
		return core.NewFailure(core.KindAuthExpired, "session expired, please log in again", 0, err)
	}

	if err := sm.persist(ctx, *pair, user); err != nil {
		sm.Logout(ctx)
		return core.NewFailure(core.KindAuthExpired, "session expired, please log in again", 0, err)
	}

	sm.mu.Lock()
	sm.session.AccessToken = pair.AccessToken
	sm.session.RefreshToken = pair.RefreshToken
	sm.mu.Unlock()

	sm.log.Debug("tokens refreshed")
	return nil
}

// EnsureFresh refreshes proactively when the access token's expiry claim
// has passed (or will within skew). Opaque tokens are left alone; the
// reactive 401 path remains authoritative.
func (sm *SessionManager) EnsureFresh(ctx context.Context, skew time.Duration) error {
	sm.mu.RLock()
	token := sm.session.AccessToken
	sm.mu.RUnlock()

	if token == "" || !core.TokenExpired(token, skew) {
		return nil
	}
	return sm.Refresh(ctx)
}

// Logout clears the session locally and, best effort, server-side and at
// the identity provider. Idempotent: logging out an anonymous session is a
// no-op and never fails.
func (sm *SessionManager) Logout(ctx context.Context) {
	sm.mu.RLock()
	accessToken := sm.session.AccessToken
	sm.mu.RUnlock()

	if accessToken != "" {
		if err := sm.bridge.Logout(ctx, accessToken); err != nil {
			// Offline logout still clears local state.
			sm.log.Debug("backend logout failed", zap.Error(err))
		}
	}
	if err := sm.provider.SignOut(ctx); err != nil {
		sm.log.Debug("provider sign-out failed", zap.Error(err))
	}

	sm.sweepStore(ctx)
	sm.setSession(core.Session{})
	sm.log.Info("logged out")
}

// UpdateUser replaces the in-memory user and re-persists it. Purely local;
// it never contacts the network.
func (sm *SessionManager) UpdateUser(ctx context.Context, user core.User) error {
	sm.mu.Lock()
	if sm.session.User == nil {
		sm.mu.Unlock()
		return core.ErrNotAuthenticated
	}
	sm.session.User = &user
	sm.mu.Unlock()

	encoded, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := sm.store.Set(ctx, core.KeyUserData, string(encoded)); err != nil {
		return fmt.Errorf("failed to persist user: %w", err)
	}
	return nil
}

// persist writes all three keys, or none: a partial write is rolled back
// by sweeping the store so hydration can never observe a torn state.
func (sm *SessionManager) persist(ctx context.Context, tokens core.TokenPair, user *core.User) error {
	encoded, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	writes := []struct{ key, value string }{
		{core.KeyAccessToken, tokens.AccessToken},
		{core.KeyRefreshToken, tokens.RefreshToken},
		{core.KeyUserData, string(encoded)},
	}
	for _, w := range writes {
		if err := sm.store.Set(ctx, w.key, w.value); err != nil {
			sm.sweepStore(ctx)
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}
	return nil
}

// sweepStore removes all three keys, tolerating absence.
func (sm *SessionManager) sweepStore(ctx context.Context) {
	for _, key := range []string{core.KeyAccessToken, core.KeyRefreshToken, core.KeyUserData} {
		if err := sm.store.Remove(ctx, key); err != nil && !errors.Is(err, core.ErrKeyNotFound) {
			sm.log.Debug("failed to remove credential key", zap.String("key", key), zap.Error(err))
		}
	}
}

func (sm *SessionManager) setSession(session core.Session) {
	sm.mu.Lock()
	sm.session = session
	sm.mu.Unlock()
}

// Provider failure codes recovered into fixed user-facing strings; unknown
// codes fall back to the provider's raw message.
var providerMessages = map[string]string{
	"INVALID_EMAIL":               "That email address is not valid.",
	"EMAIL_NOT_FOUND":             "No account exists for that email.",
	"USER_NOT_FOUND":              "No account exists for that email.",
	"INVALID_PASSWORD":            "Incorrect password.",
	"INVALID_LOGIN_CREDENTIALS":   "Incorrect email or password.",
	"EMAIL_EXISTS":                "An account with that email already exists.",
	"WEAK_PASSWORD":               "Password is too weak. Use at least 6 characters.",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Too many attempts. Try again later.",
	"USER_DISABLED":               "This account has been disabled.",
}

func recoverProviderError(err error) error {
	var providerErr *core.ProviderError
	if !errors.As(err, &providerErr) {
		return err
	}
	message, ok := providerMessages[providerErr.Code]
	if !ok {
		message = providerErr.Message
		if message == "" {
			message = providerErr.Code
		}
	}
	return core.NewFailure(core.KindValidation, message, 0, err)
}
