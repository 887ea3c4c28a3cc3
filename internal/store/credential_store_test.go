package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rundownhq/rundown/internal/models"
	"github.com/rundownhq/rundown/internal/secret"
)

type mockRefresher struct {
	refreshFunc func(ctx context.Context, refreshToken string) (*models.TokenBundle, error)
	calls       int
}

func (m *mockRefresher) Refresh(ctx context.Context, refreshToken string) (*models.TokenBundle, error) {
	m.calls++
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, refreshToken)
	}
	return nil, errors.New("refresh not configured")
}

func newTestStore(t *testing.T, refresher TokenRefresher) (*CredentialStore, string) {
	t.Helper()
	dir := t.TempDir()
	cipher, err := secret.LoadOrCreateKey(filepath.Join(dir, "secret.key"))
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}
	tokensDir := filepath.Join(dir, "tokens")
	s, err := NewCredentialStore(tokensDir, cipher, refresher)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s, tokensDir
}

func TestCredentialStore_SaveLoad(t *testing.T) {
	s, tokensDir := newTestStore(t, &mockRefresher{})

	bundle := &models.TokenBundle{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
	}
	if err := s.Save("user-1", bundle); err != nil {
		t.Fatalf("save: %v", err)
	}

	// The on-disk blob must be encrypted.
	raw, err := os.ReadFile(filepath.Join(tokensDir, "user-1.json"))
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if strings.Contains(string(raw), "access-123") {
		t.Error("token file must not contain the plaintext access token")
	}

	got, err := s.Load("user-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("expected bundle, got nil")
	}
	if got.AccessToken != "access-123" || got.RefreshToken != "refresh-456" {
		t.Errorf("loaded bundle mismatch: %+v", got)
	}
}

func TestCredentialStore_SaveLeavesNoTempFiles(t *testing.T) {
	s, tokensDir := newTestStore(t, &mockRefresher{})

	if err := s.Save("user-1", &models.TokenBundle{AccessToken: "first"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Overwriting an existing bundle goes through the same temp-then-rename
	// path and must still round-trip.
	if err := s.Save("user-1", &models.TokenBundle{AccessToken: "second"}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	entries, err := os.ReadDir(tokensDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("leftover temp file after save: %s", entry.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one token file, got %d entries", len(entries))
	}

	got, err := s.Load("user-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.AccessToken != "second" {
		t.Errorf("expected the replacing bundle, got %+v", got)
	}
}

func TestCredentialStore_Load_Absent(t *testing.T) {
	s, _ := newTestStore(t, &mockRefresher{})

	got, err := s.Load("nobody")
	if err != nil {
		t.Fatalf("expected no error for absent credential, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil bundle, got %+v", got)
	}
}

func TestCredentialStore_Load_Corrupt(t *testing.T) {
	s, tokensDir := newTestStore(t, &mockRefresher{})

	if err := os.WriteFile(filepath.Join(tokensDir, "user-1.json"), []byte("not encrypted"), 0o600); err != nil {
		t.Fatalf("write corrupt blob: %v", err)
	}

	got, err := s.Load("user-1")
	if err != nil {
		t.Fatalf("corrupt blob must not be an error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil bundle for corrupt blob, got %+v", got)
	}
}

func TestCredentialStore_Delete_Idempotent(t *testing.T) {
	s, _ := newTestStore(t, &mockRefresher{})

	if err := s.Save("user-1", &models.TokenBundle{AccessToken: "tok"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete("user-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.Delete("user-1"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}

	got, _ := s.Load("user-1")
	if got != nil {
		t.Error("expected credential gone after delete")
	}
}

func TestCredentialStore_ListUsers(t *testing.T) {
	s, tokensDir := newTestStore(t, &mockRefresher{})

	for _, id := range []string{"alice", "bob"} {
		if err := s.Save(id, &models.TokenBundle{AccessToken: "tok"}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	// Preference files and stray files must not show up as users.
	os.WriteFile(filepath.Join(tokensDir, "alice_preferences.json"), []byte("{}"), 0o600)
	os.WriteFile(filepath.Join(tokensDir, "README.txt"), []byte("x"), 0o600)

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	sort.Strings(users)
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("expected [alice bob], got %v", users)
	}
}

func TestCredentialStore_AccessToken_Unexpired(t *testing.T) {
	refresher := &mockRefresher{}
	s, _ := newTestStore(t, refresher)

	bundle := &models.TokenBundle{
		AccessToken:  "still-good",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := s.Save("user-1", bundle); err != nil {
		t.Fatalf("save: %v", err)
	}

	token := s.AccessToken(context.Background(), "user-1")
	if token != "still-good" {
		t.Errorf("expected still-good, got %q", token)
	}
	if refresher.calls != 0 {
		t.Errorf("expected no refresh for an unexpired token, got %d calls", refresher.calls)
	}
}

func TestCredentialStore_AccessToken_RefreshesExpired(t *testing.T) {
	refresher := &mockRefresher{
		refreshFunc: func(ctx context.Context, refreshToken string) (*models.TokenBundle, error) {
			if refreshToken != "refresh-old" {
				t.Errorf("expected stored refresh token, got %q", refreshToken)
			}
			return &models.TokenBundle{
				AccessToken:  "access-new",
				RefreshToken: "refresh-new",
				ExpiresAt:    time.Now().Add(time.Hour),
			}, nil
		},
	}
	s, _ := newTestStore(t, refresher)

	expired := &models.TokenBundle{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	if err := s.Save("user-1", expired); err != nil {
		t.Fatalf("save: %v", err)
	}

	token := s.AccessToken(context.Background(), "user-1")
	if token != "access-new" {
		t.Errorf("expected refreshed token, got %q", token)
	}

	// The renewed bundle must be persisted.
	reloaded, err := s.Load("user-1")
	if err != nil || reloaded == nil {
		t.Fatalf("reload: %v (%+v)", err, reloaded)
	}
	if reloaded.AccessToken != "access-new" || reloaded.RefreshToken != "refresh-new" {
		t.Errorf("renewed bundle not persisted: %+v", reloaded)
	}
}

func TestCredentialStore_AccessToken_Failures(t *testing.T) {
	failing := &mockRefresher{
		refreshFunc: func(ctx context.Context, refreshToken string) (*models.TokenBundle, error) {
			return nil, errors.New("invalid_grant")
		},
	}
	s, _ := newTestStore(t, failing)

	tests := []struct {
		name   string
		userID string
		bundle *models.TokenBundle
	}{
		{
			name:   "no stored credential",
			userID: "nobody",
		},
		{
			name:   "provider error in bundle",
			userID: "errored",
			bundle: &models.TokenBundle{Error: "invalid_grant", RefreshToken: "r"},
		},
		{
			name:   "expired with failed refresh",
			userID: "expired",
			bundle: &models.TokenBundle{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Hour)},
		},
		{
			name:   "expired without refresh token",
			userID: "norefresh",
			bundle: &models.TokenBundle{AccessToken: "a", ExpiresAt: time.Now().Add(-time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.bundle != nil {
				if err := s.Save(tt.userID, tt.bundle); err != nil {
					t.Fatalf("save: %v", err)
				}
			}
			if token := s.AccessToken(context.Background(), tt.userID); token != "" {
				t.Errorf("expected empty token, got %q", token)
			}
		})
	}
}

func TestCredentialStore_InvalidUserID(t *testing.T) {
	s, _ := newTestStore(t, &mockRefresher{})

	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if err := s.Save(id, &models.TokenBundle{}); !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("Save(%q): expected ErrInvalidUserID, got %v", id, err)
		}
	}
}
