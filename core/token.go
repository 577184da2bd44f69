package core

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair is the access/refresh pair the backend issues. The canonical
// wire contract is snake_case; camelCase field names are accepted on decode
// as legacy compatibility only and are never emitted.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (t *TokenPair) UnmarshalJSON(data []byte) error {
	var raw struct {
		AccessToken        string `json:"access_token"`
		RefreshToken       string `json:"refresh_token"`
		LegacyAccessToken  string `json:"accessToken"`
		LegacyRefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.AccessToken = raw.AccessToken
	if t.AccessToken == "" {
		t.AccessToken = raw.LegacyAccessToken
	}
	t.RefreshToken = raw.RefreshToken
	if t.RefreshToken == "" {
		t.RefreshToken = raw.LegacyRefreshToken
	}
	return nil
}

// Complete reports whether both halves of the pair are present.
func (t TokenPair) Complete() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

var ErrNoExpiry = errors.New("token carries no expiry claim")

// TokenExpiry peeks at a JWT's exp claim without verifying its signature.
// The client has no signing key; verification is the backend's job. Used
// only to decide whether a silent refresh is worth attempting before an
// upload. Opaque (non-JWT) tokens return an error and callers fall back to
// the reactive 401 path.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// TokenExpired reports whether the token's exp claim has passed, with a
// small skew so a token about to die is treated as dead. Tokens without a
// readable expiry are assumed live.
func TokenExpired(token string, skew time.Duration) bool {
	exp, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return time.Now().Add(skew).After(exp)
}
