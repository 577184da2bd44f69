package core

import (
	"errors"
	"fmt"
)

// Session errors
var (
	ErrKeyNotFound      = errors.New("credential key not found")
	ErrNotAuthenticated = errors.New("no authenticated session")
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrSessionLoading   = errors.New("session is still loading")
)

// Media errors (client input)
var (
	ErrEmptyBatch   = errors.New("no assets to upload")
	ErrBatchTooLong = errors.New("batch exceeds maximum asset count")
	ErrMissingURI   = errors.New("asset has no uri")
)

// Config errors (SDK construction)
var (
	ErrStoreRequired    = errors.New("credential store is required")
	ErrProviderRequired = errors.New("identity provider is required")
	ErrBadPlatform      = errors.New("platform must be web or native")
)

// FailureKind is the closed taxonomy every surfaced failure maps onto.
// Classification is structural (status code, content type, body shape),
// never string-matched on messages.
type FailureKind int

const (
	KindUnknown FailureKind = iota
	KindNetworkUnavailable
	KindTimeout
	KindAuthExpired
	KindValidation
	KindServer
	KindMalformedResponse
)

func (k FailureKind) String() string {
	switch k {
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindTimeout:
		return "timeout"
	case KindAuthExpired:
		return "auth_expired"
	case KindValidation:
		return "validation_error"
	case KindServer:
		return "server_error"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Failure tags an underlying error with exactly one FailureKind and a
// message fit for the UI layer.
type Failure struct {
	Kind    FailureKind
	Message string
	Status  int // HTTP status when one was observed, else 0
	cause   error
}

func NewFailure(kind FailureKind, message string, status int, cause error) *Failure {
	return &Failure{Kind: kind, Message: message, Status: status, cause: cause}
}

func (f *Failure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.cause }

// FailureKindOf extracts the taxonomy tag from any error chain.
func FailureKindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// MediaFetchError reports which asset of a batch could not be dereferenced.
// One failed dereference fails the whole batch before any upload happens.
type MediaFetchError struct {
	AssetName string
	Err       error
}

func (e *MediaFetchError) Error() string {
	return fmt.Sprintf("failed to fetch asset %q: %v", e.AssetName, e.Err)
}

func (e *MediaFetchError) Unwrap() error { return e.Err }

// IdentityExchangeError is a backend rejection of the federated token
// exchange, carrying the backend's detail when the body was JSON.
type IdentityExchangeError struct {
	Status int
	Detail string
}

func (e *IdentityExchangeError) Error() string {
	return fmt.Sprintf("identity exchange failed (%d): %s", e.Status, e.Detail)
}

// ProviderError is a failure code from the external identity provider.
// SessionManager recovers known codes into fixed user-facing strings.
type ProviderError struct {
	Code    string // provider error code, e.g. "INVALID_PASSWORD"
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("identity provider: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider: %s", e.Code)
}
