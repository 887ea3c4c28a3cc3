package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rundownhq/rundown/internal/models"
	"github.com/rundownhq/rundown/internal/secret"
)

const (
	preferencesSuffix = "_preferences"

	// refreshSkew treats tokens expiring this soon as already expired, so a
	// token never runs out mid-pass.
	refreshSkew = 5 * time.Minute
)

var ErrInvalidUserID = errors.New("invalid user id")

// TokenRefresher obtains a fresh token bundle from the identity provider
// using a stored refresh token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenBundle, error)
}

// CredentialStore persists one encrypted token bundle per user under a
// directory, one file per user. Enumerating the directory is how the
// reconciler discovers users.
type CredentialStore struct {
	dir       string
	cipher    *secret.Cipher
	refresher TokenRefresher
}

func NewCredentialStore(dir string, cipher *secret.Cipher, refresher TokenRefresher) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create tokens dir: %w", err)
	}
	return &CredentialStore{dir: dir, cipher: cipher, refresher: refresher}, nil
}

// Save encrypts and writes the bundle, replacing any prior one. The write is
// atomic (temp file + rename) so a concurrent reader never sees a half-written
// blob.
func (s *CredentialStore) Save(userID string, bundle *models.TokenBundle) error {
	path, err := s.path(userID)
	if err != nil {
		return err
	}

	plain, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal token bundle: %w", err)
	}

	blob, err := s.cipher.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt token bundle: %w", err)
	}

	return writeFileAtomic(path, blob, 0o600)
}

// Load reads and decrypts the user's bundle. A missing file or an
// undecryptable blob means "no credential", not an error.
func (s *CredentialStore) Load(userID string) (*models.TokenBundle, error) {
	path, err := s.path(userID)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token bundle: %w", err)
	}

	plain, err := s.cipher.Decrypt(blob)
	if err != nil {
		log.Warn().Str("user", userID).Msg("stored credential is undecryptable, treating as absent")
		return nil, nil
	}

	var bundle models.TokenBundle
	if err := json.Unmarshal(plain, &bundle); err != nil {
		log.Warn().Str("user", userID).Err(err).Msg("stored credential is malformed, treating as absent")
		return nil, nil
	}
	return &bundle, nil
}

// Delete removes the stored credential so the user must re-authenticate.
// Deleting an absent credential is a no-op.
func (s *CredentialStore) Delete(userID string) error {
	path, err := s.path(userID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete token bundle: %w", err)
	}
	return nil
}

// ListUsers enumerates the users that have a stored credential.
func (s *CredentialStore) ListUsers() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list tokens dir: %w", err)
	}

	var users []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if strings.HasSuffix(id, preferencesSuffix) {
			continue
		}
		users = append(users, id)
	}
	return users, nil
}

// AccessToken returns a valid access token for the user, refreshing and
// re-persisting the bundle when the stored token is expired. An empty string
// is the only failure signal: no stored credential, a provider-reported
// error, or a failed refresh all yield "".
func (s *CredentialStore) AccessToken(ctx context.Context, userID string) string {
	bundle, err := s.Load(userID)
	if err != nil || bundle == nil {
		return ""
	}

	if bundle.HasError() {
		log.Warn().Str("user", userID).Str("provider_error", bundle.Error).Msg("stored credential carries a provider error")
		return ""
	}

	if bundle.AccessToken != "" && !bundle.Expired(refreshSkew) {
		return bundle.AccessToken
	}

	if bundle.RefreshToken == "" {
		log.Warn().Str("user", userID).Msg("access token expired and no refresh token available")
		return ""
	}

	renewed, err := s.refresher.Refresh(ctx, bundle.RefreshToken)
	if err != nil {
		log.Warn().Str("user", userID).Err(err).Msg("token refresh failed")
		return ""
	}

	if err := s.Save(userID, renewed); err != nil {
		log.Warn().Str("user", userID).Err(err).Msg("failed to persist renewed token bundle")
		// The token itself is still usable for this pass.
	}
	return renewed.AccessToken
}

func (s *CredentialStore) path(userID string) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, userID+".json"), nil
}

func validateUserID(userID string) error {
	if userID == "" || userID == "." || userID == ".." ||
		strings.ContainsAny(userID, `/\`) {
		return ErrInvalidUserID
	}
	return nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}
