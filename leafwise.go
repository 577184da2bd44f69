// Package leafwise is the Go client for the Leafwise plant-disease
// diagnosis service: federated-identity session lifecycle, environment
// aware endpoint resolution, and the image capture-to-analysis pipeline.
package leafwise

import (
	"go.uber.org/zap"

	"github.com/leafwise/leafwise-go/core"
	"github.com/leafwise/leafwise-go/pkg/media"
	"github.com/leafwise/leafwise-go/services"
)

// interfaces
type (
	CredentialStore  = core.CredentialStore
	IdentityProvider = core.IdentityProvider
	HTTPDoer         = core.HTTPDoer

	MediaBuilder = media.Builder
)

// models
type (
	Session        = core.Session
	User           = core.User
	MediaAsset     = core.MediaAsset
	AnalysisResult = core.AnalysisResult
	TokenPair      = core.TokenPair
	Failure        = core.Failure
	FailureKind    = core.FailureKind
)

type Platform = services.Platform

const (
	PlatformWeb    = services.PlatformWeb
	PlatformNative = services.PlatformNative
)

// failure taxonomy
const (
	KindNetworkUnavailable = core.KindNetworkUnavailable
	KindTimeout            = core.KindTimeout
	KindAuthExpired        = core.KindAuthExpired
	KindValidation         = core.KindValidation
	KindServer             = core.KindServer
	KindMalformedResponse  = core.KindMalformedResponse
)

var (
	ErrKeyNotFound      = core.ErrKeyNotFound
	ErrNotAuthenticated = core.ErrNotAuthenticated
	ErrNoRefreshToken   = core.ErrNoRefreshToken
	ErrSessionLoading   = core.ErrSessionLoading
	ErrEmptyBatch       = core.ErrEmptyBatch
	ErrBatchTooLong     = core.ErrBatchTooLong
)

var (
	ErrStoreRequired    = core.ErrStoreRequired
	ErrProviderRequired = core.ErrProviderRequired
	ErrBadPlatform      = core.ErrBadPlatform
)

// Convenience re-exports
var (
	ResolveBaseURL = services.ResolveBaseURL
	FailureKindOf  = core.FailureKindOf
)

// Config assembles a Client. Store and Provider are required; everything
// else has working defaults.
type Config struct {
	// Platform selects the media strategy and how BaseURL is resolved.
	Platform Platform

	// OriginHost is the serving origin's host when Platform is web. Only a
	// recognized tunnel host lets EnvURL take effect there.
	OriginHost string

	// EnvURL is the externally-supplied service URL; empty falls back to
	// the local default.
	EnvURL string

	Store    core.CredentialStore
	Provider core.IdentityProvider

	// Optional config
	HTTPClient core.HTTPDoer
	Logger     *zap.Logger
}

// Client bundles the session manager and the analyze client over one
// resolved endpoint.
type Client struct {
	Sessions *services.SessionManager
	Analyze  *services.AnalyzeClient
	BaseURL  string
}

func New(config Config) (*Client, error) {
	if !config.Platform.Valid() {
		return nil, ErrBadPlatform
	}
	if config.Store == nil {
		return nil, ErrStoreRequired
	}
	if config.Provider == nil {
		return nil, ErrProviderRequired
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}

	baseURL := services.ResolveBaseURL(config.Platform, config.OriginHost, config.EnvURL)

	var builder media.Builder
	if config.Platform == PlatformWeb {
		builder = media.NewRemoteBuilder(config.HTTPClient)
	} else {
		builder = media.NewFileBuilder()
	}

	bridge := services.NewIdentityBridge(baseURL, config.HTTPClient, log)
	sessions := services.NewSessionManager(config.Store, config.Provider, bridge, log)
	analyze := services.NewAnalyzeClient(baseURL, sessions, builder, config.HTTPClient, log)

	return &Client{
		Sessions: sessions,
		Analyze:  analyze,
		BaseURL:  baseURL,
	}, nil
}
