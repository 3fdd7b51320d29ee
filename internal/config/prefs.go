package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Theme values for the UI preference.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// prefsFileName is the preferences file under the config directory.
const prefsFileName = "prefs.json"

// Prefs holds user-scoped settings that are not part of any session:
// the Notion integration and the theme preference. It is persisted as
// a JSON file under ~/.niko.
type Prefs struct {
	Notion NotionConfig `json:"notion"`
	Theme  string       `json:"theme"`
}

// PrefsStore loads and saves Prefs with whole-value replacement.
// Safe for concurrent use.
type PrefsStore struct {
	mu   sync.Mutex
	path string
}

// NewPrefsStore creates a PrefsStore persisting under the given directory.
func NewPrefsStore(dir string) *PrefsStore {
	return &PrefsStore{path: filepath.Join(dir, prefsFileName)}
}

// Load reads the persisted preferences. A missing file yields defaults.
func (p *PrefsStore) Load() (Prefs, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefs := Prefs{Theme: ThemeLight}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return prefs, nil
		}
		return prefs, fmt.Errorf("reading preferences: %w", err)
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return prefs, fmt.Errorf("parsing preferences: %w", err)
	}
	if prefs.Theme == "" {
		prefs.Theme = ThemeLight
	}
	return prefs, nil
}

// Save validates and persists the preferences atomically (write to a
// temp file, then rename).
func (p *PrefsStore) Save(prefs Prefs) error {
	if prefs.Theme != ThemeLight && prefs.Theme != ThemeDark {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, prefs.Theme)
	}
	if prefs.Notion.Enabled {
		if err := prefs.Notion.Check(); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replacing preferences: %w", err)
	}
	return nil
}
