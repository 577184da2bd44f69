package services

import "strings"

// Platform selects the capture/transport strategy and how the base URL is
// resolved.
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformNative Platform = "native"
)

func (p Platform) Valid() bool {
	return p == PlatformWeb || p == PlatformNative
}

// DefaultBaseURL is used whenever no environment URL applies.
const DefaultBaseURL = "http://localhost:8000"

// Backend paths the SDK consumes.
const (
	PathFederatedLogin = "/api/v1/auth/firebase-login"
	PathRefresh        = "/api/v1/auth/refresh"
	PathLogout         = "/api/v1/auth/logout"
	PathAnalyzeUpload  = "/api/analyze/upload"
	PathAnalyzeBatch   = "/api/analyze/batch"
)

// tunnelSuffixes are origin hosts that indicate the client itself is served
// through a development tunnel. Only then may the configured URL point the
// client at a tunneled backend.
var tunnelSuffixes = []string{
	".ngrok-free.dev",
	".exp.direct",
	".ngrok.io",
}

// ResolveBaseURL maps (platform, current origin host, configured env URL)
// to the service base URL. Deterministic and side-effect free.
//
// Native builds trust the environment URL outright. Web builds only trust
// it when the page itself is served through a known tunnel host; a plain
// local web session always talks to the local default so a developer's
// browser never leaks requests to a stale tunnel URL.
func ResolveBaseURL(platform Platform, originHost, envURL string) string {
	if platform != PlatformWeb {
		if envURL != "" {
			return envURL
		}
		return DefaultBaseURL
	}

	if isTunnelHost(originHost) && envURL != "" {
		return envURL
	}
	return DefaultBaseURL
}

func isTunnelHost(host string) bool {
	// Strip any port before suffix matching.
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	for _, suffix := range tunnelSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
