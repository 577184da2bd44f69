package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/leafwise/leafwise-go/core"
)

// IdentityBridge is the thin wire client for the backend's auth surface:
// federated token exchange, token refresh, and server-side logout. It holds
// no state; persistence is SessionManager's job.
type IdentityBridge struct {
	baseURL string
	http    core.HTTPDoer
	log     *zap.Logger
}

func NewIdentityBridge(baseURL string, doer core.HTTPDoer, log *zap.Logger) *IdentityBridge {
	if doer == nil {
		doer = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityBridge{baseURL: baseURL, http: doer, log: log}
}

// ExchangeResult is what the backend returns for a successful federated
// login: the service's own token pair plus the resolved user.
type ExchangeResult struct {
	Tokens core.TokenPair
	User   *core.User
}

type exchangeRequest struct {
	FirebaseToken string `json:"firebase_token"`
	FullName      string `json:"full_name,omitempty"`
}

// Exchange trades a federated ID token for the service's access/refresh
// pair. fullName is only sent on registration.
func (b *IdentityBridge) Exchange(ctx context.Context, federatedToken, fullName string) (*ExchangeResult, error) {
	body, err := b.post(ctx, PathFederatedLogin, exchangeRequest{
		FirebaseToken: federatedToken,
		FullName:      fullName,
	}, "")
	if err != nil {
		return nil, err
	}

	// Tokens and user decode separately: TokenPair's custom unmarshal
	// handles the legacy field names and must see the top-level object.
	var tokens core.TokenPair
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, core.NewFailure(core.KindMalformedResponse, "exchange response is not valid JSON", 0, err)
	}
	var envelope struct {
		User *core.User `json:"user"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, core.NewFailure(core.KindMalformedResponse, "exchange response is not valid JSON", 0, err)
	}
	if !tokens.Complete() || envelope.User == nil {
		return nil, core.NewFailure(core.KindMalformedResponse, "exchange response missing tokens or user", 0, nil)
	}

	b.log.Debug("federated exchange succeeded", zap.String("user_id", envelope.User.ID))
	return &ExchangeResult{Tokens: tokens, User: envelope.User}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh trades a refresh token for a new pair.
func (b *IdentityBridge) Refresh(ctx context.Context, refreshToken string) (*core.TokenPair, error) {
	body, err := b.post(ctx, PathRefresh, refreshRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		return nil, err
	}

	var pair core.TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, core.NewFailure(core.KindMalformedResponse, "refresh response is not valid JSON", 0, err)
	}
	if !pair.Complete() {
		return nil, core.NewFailure(core.KindMalformedResponse, "refresh response missing tokens", 0, nil)
	}
	return &pair, nil
}

// Logout tells the backend to revoke the session. Callers treat failures
// as non-fatal; the local session is cleared regardless.
func (b *IdentityBridge) Logout(ctx context.Context, accessToken string) error {
	_, err := b.post(ctx, PathLogout, struct{}{}, accessToken)
	return err
}

// post sends a JSON body and returns the raw response body after the
// shared error handling: non-2xx statuses become IdentityExchangeError
// with the backend's detail when the body was JSON, or a generic message
// when it was an HTML error page or similar.
func (b *IdentityBridge) post(ctx context.Context, path string, payload any, bearer string) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("ngrok-skip-browser-warning", "true")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewFailure(core.KindNetworkUnavailable, "failed to read response body", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := errorDetail(resp.Header.Get("Content-Type"), body)
		if detail == "" {
			detail = fmt.Sprintf("server returned %d", resp.StatusCode)
		}
		b.log.Warn("auth request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, &core.IdentityExchangeError{Status: resp.StatusCode, Detail: detail}
	}

	return body, nil
}

// errorDetail pulls the backend's detail/message out of a JSON error body.
// Detection is by content type and body shape, never assumed: proxies and
// tunnels frequently answer with HTML error pages.
func errorDetail(contentType string, body []byte) string {
	if !jsonBody(contentType, body) {
		return ""
	}
	var decoded struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	if decoded.Detail != "" {
		return decoded.Detail
	}
	return decoded.Message
}

// jsonBody sniffs whether a response body is plausibly JSON: the declared
// content type, or failing that the first non-space byte.
func jsonBody(contentType string, body []byte) bool {
	if strings.Contains(contentType, "application/json") {
		return true
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
