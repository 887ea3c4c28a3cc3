package msauth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func fakeIDToken(t *testing.T, claims string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(claims))
	return header + "." + payload + ".sig"
}

func TestIdentityFromIDToken(t *testing.T) {
	tests := []struct {
		name       string
		claims     string
		wantUserID string
		wantErr    bool
	}{
		{
			name:       "oid preferred",
			claims:     `{"oid":"oid-1","sub":"sub-1","preferred_username":"a@b.com","name":"A"}`,
			wantUserID: "oid-1",
		},
		{
			name:       "falls back to sub",
			claims:     `{"sub":"sub-1"}`,
			wantUserID: "sub-1",
		},
		{
			name:    "no user id at all",
			claims:  `{"name":"A"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := identityFromIDToken(fakeIDToken(t, tt.claims))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if identity.UserID != tt.wantUserID {
				t.Errorf("Expected user id %s, got %s", tt.wantUserID, identity.UserID)
			}
		})
	}
}

func TestIdentityFromIDToken_Malformed(t *testing.T) {
	for _, token := range []string{"", "single", "a.b", "a.!!!.c"} {
		if _, err := identityFromIDToken(token); err == nil {
			t.Errorf("expected error for %q, got nil", token)
		}
	}
}

func TestBundleFromToken_RetainsRawResponse(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	token := (&oauth2.Token{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}).WithExtra(map[string]any{
		"scope":    "openid offline_access",
		"id_token": "header.payload.sig",
	})

	bundle := bundleFromToken(token)

	if bundle.Scope != "openid offline_access" {
		t.Errorf("expected scope carried over, got %q", bundle.Scope)
	}
	if bundle.Raw == nil {
		t.Fatal("expected raw provider response to be retained")
	}
	for key, want := range map[string]any{
		"access_token":  "at-1",
		"refresh_token": "rt-1",
		"token_type":    "Bearer",
		"scope":         "openid offline_access",
		"id_token":      "header.payload.sig",
	} {
		if got := bundle.Raw[key]; got != want {
			t.Errorf("raw[%q] = %v, want %v", key, got, want)
		}
	}
	if got, ok := bundle.Raw["expires_at"].(time.Time); !ok || !got.Equal(expiry) {
		t.Errorf("raw expires_at = %v, want %v", bundle.Raw["expires_at"], expiry)
	}
}

func TestAuthCodeURL(t *testing.T) {
	c := NewClient("client-id", "secret", "tenant-1", "http://localhost:5000/oauth/callback")

	url := c.AuthCodeURL("state-xyz")
	for _, fragment := range []string{
		"client_id=client-id",
		"state=state-xyz",
		"prompt=consent",
		"offline_access",
		"tenant-1",
	} {
		if !strings.Contains(url, fragment) {
			t.Errorf("auth URL missing %q: %s", fragment, url)
		}
	}
}
