// Package firebase implements core.IdentityProvider against the Google
// Identity Toolkit REST API, the same surface the mobile SDKs wrap.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/leafwise/leafwise-go/core"
)

const defaultEndpoint = "https://identitytoolkit.googleapis.com/v1"

// Provider signs users in and up with email/password and returns the
// federated ID token the backend exchange endpoint expects.
type Provider struct {
	apiKey   string
	endpoint string
	http     core.HTTPDoer
}

func NewProvider(apiKey string, doer core.HTTPDoer) *Provider {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Provider{apiKey: apiKey, endpoint: defaultEndpoint, http: doer}
}

var _ core.IdentityProvider = (*Provider)(nil)

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type credentialsResponse struct {
	IDToken string `json:"idToken"`
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (string, error) {
	return p.post(ctx, "accounts:signInWithPassword", email, password)
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (string, error) {
	return p.post(ctx, "accounts:signUp", email, password)
}

// SignOut is a no-op: Identity Toolkit ID tokens are stateless and simply
// expire. Satisfies the provider port so a logout can always "succeed".
func (p *Provider) SignOut(context.Context) error { return nil }

func (p *Provider) post(ctx context.Context, action, email, password string) (string, error) {
	payload, err := json.Marshal(credentialsRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s?key=%s", p.endpoint, action, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", decodeProviderError(body)
	}

	var decoded credentialsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode provider response: %w", err)
	}
	if decoded.IDToken == "" {
		return "", fmt.Errorf("provider response missing id token")
	}
	return decoded.IDToken, nil
}

// decodeProviderError lifts the Identity Toolkit error payload into a
// core.ProviderError. Codes sometimes carry a suffix after a colon
// ("WEAK_PASSWORD : ..."); only the bare code is kept.
func decodeProviderError(body []byte) error {
	var decoded struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Error.Message == "" {
		return &core.ProviderError{Code: "UNKNOWN"}
	}

	code, message, found := strings.Cut(decoded.Error.Message, ":")
	code = strings.TrimSpace(code)
	if !found {
		return &core.ProviderError{Code: code}
	}
	return &core.ProviderError{Code: code, Message: strings.TrimSpace(message)}
}
