package models

import "time"

// TokenBundle is the provider token response stored (encrypted) per user.
// Field names mirror the OAuth token endpoint response so the raw provider
// payload round-trips through storage unchanged.
type TokenBundle struct {
	AccessToken      string         `json:"access_token"`
	RefreshToken     string         `json:"refresh_token,omitempty"`
	IDToken          string         `json:"id_token,omitempty"`
	TokenType        string         `json:"token_type,omitempty"`
	Scope            string         `json:"scope,omitempty"`
	ExpiresAt        time.Time      `json:"expires_at"`
	Error            string         `json:"error,omitempty"`
	ErrorDescription string         `json:"error_description,omitempty"`
	Raw              map[string]any `json:"raw,omitempty"`
}

// HasError reports whether the provider returned an explicit error with this
// bundle (e.g. invalid_grant after a revoked consent).
func (b *TokenBundle) HasError() bool {
	return b.Error != ""
}

// Expired reports whether the access token is expired or will expire within
// the given skew.
func (b *TokenBundle) Expired(skew time.Duration) bool {
	if b.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(skew).After(b.ExpiresAt)
}
