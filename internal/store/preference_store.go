package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rundownhq/rundown/internal/models"
)

// PreferenceStore persists one plaintext preference record per user next to
// the credential files ({user}_preferences.json).
type PreferenceStore struct {
	dir string
}

func NewPreferenceStore(dir string) (*PreferenceStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create tokens dir: %w", err)
	}
	return &PreferenceStore{dir: dir}, nil
}

// Load returns the user's preferences, or the defaults when the user has
// never saved any.
func (s *PreferenceStore) Load(userID string) (*models.Preferences, error) {
	path, err := s.path(userID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}

	var prefs models.Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("parse preferences: %w", err)
	}
	return &prefs, nil
}

// Save replaces the user's preference record wholesale.
func (s *PreferenceStore) Save(userID string, prefs *models.Preferences) error {
	path, err := s.path(userID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	return writeFileAtomic(path, data, 0o600)
}

func (s *PreferenceStore) path(userID string) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, userID+preferencesSuffix+".json"), nil
}
