package core

import (
	"context"
	"net/http"
)

// Ports define interfaces for external dependencies

// ============================================
// STORAGE PORT (durable credential persistence)
// ============================================

// CredentialStore is durable key/value persistence for the three session
// keys. Get returns ErrKeyNotFound when the key is absent; implementations
// must survive process restarts.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// ============================================
// IDENTITY PORT (external federated provider)
// ============================================

// IdentityProvider obtains a federated ID token from the external identity
// service. The token is opaque to this package; it is only ever forwarded
// to the backend exchange endpoint.
type IdentityProvider interface {
	// SignIn authenticates an existing account and returns its ID token.
	SignIn(ctx context.Context, email, password string) (string, error)
	// SignUp creates an account and returns its ID token.
	SignUp(ctx context.Context, email, password string) (string, error)
	// SignOut invalidates provider-side state. Best effort; failures are
	// non-fatal to a local logout.
	SignOut(ctx context.Context) error
}

// ============================================
// TRANSPORT PORT
// ============================================

// HTTPDoer is the subset of *http.Client the services need. Tests inject
// recording implementations.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
