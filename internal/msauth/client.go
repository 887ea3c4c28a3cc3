package msauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/rundownhq/rundown/internal/models"
)

// Scopes requested from the identity provider. offline_access yields the
// refresh token, openid/profile yield the ID token we take the user id from.
var Scopes = []string{
	"openid",
	"profile",
	"offline_access",
	"https://graph.microsoft.com/Mail.Read",
	"https://graph.microsoft.com/Mail.ReadWrite",
	"https://graph.microsoft.com/Calendars.ReadWrite",
	"https://graph.microsoft.com/User.Read",
}

// Identity is what we learn about the user from the ID token.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Client handles the authorization-code and refresh-token flows against the
// Microsoft identity platform.
type Client struct {
	cfg *oauth2.Config
}

func NewClient(clientID, clientSecret, tenantID, redirectURI string) *Client {
	return &Client{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     microsoft.AzureADEndpoint(tenantID),
			Scopes:       Scopes,
		},
	}
}

// AuthCodeURL builds the authorization URL. Consent is always prompted so a
// scope change on our side re-surfaces the consent screen.
func (c *Client) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token bundle and the identity
// carried in the ID token.
func (c *Client) Exchange(ctx context.Context, code string) (*Identity, *models.TokenBundle, error) {
	token, err := c.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("code exchange failed: %w", err)
	}

	bundle := bundleFromToken(token)

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, nil, fmt.Errorf("provider response missing id_token")
	}
	bundle.IDToken = idToken

	identity, err := identityFromIDToken(idToken)
	if err != nil {
		return nil, nil, err
	}
	return identity, bundle, nil
}

// Refresh obtains a fresh token bundle from a stored refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.TokenBundle, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token")
	}

	ts := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	bundle := bundleFromToken(token)
	if bundle.RefreshToken == "" {
		bundle.RefreshToken = refreshToken // provider did not rotate it
	}
	return bundle, nil
}

func bundleFromToken(token *oauth2.Token) *models.TokenBundle {
	scope, _ := token.Extra("scope").(string)

	raw := map[string]any{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_at":   token.Expiry,
	}
	if token.RefreshToken != "" {
		raw["refresh_token"] = token.RefreshToken
	}
	if scope != "" {
		raw["scope"] = scope
	}
	if idToken, _ := token.Extra("id_token").(string); idToken != "" {
		raw["id_token"] = idToken
	}

	return &models.TokenBundle{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scope:        scope,
		ExpiresAt:    token.Expiry,
		Raw:          raw,
	}
}

// identityFromIDToken pulls the stable user id out of the ID token claims.
// The token just arrived over TLS from the issuer, so the signature is not
// re-verified here.
func identityFromIDToken(idToken string) (*Identity, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed id_token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode id_token claims: %w", err)
	}

	var claims struct {
		OID               string `json:"oid"`
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Name              string `json:"name"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", err)
	}

	userID := claims.OID
	if userID == "" {
		userID = claims.Sub
	}
	if userID == "" {
		return nil, fmt.Errorf("id_token carries no user id")
	}

	return &Identity{
		UserID: userID,
		Email:  claims.PreferredUsername,
		Name:   claims.Name,
	}, nil
}
