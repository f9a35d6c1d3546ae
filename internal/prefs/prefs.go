// Package prefs is the general preferences document: the last full-sync
// time plus a few one-time UI flags. One copy lives in the data directory;
// during a sync a second copy is fetched from the remote for comparison.
package prefs

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the document's name locally and remotely.
const FileName = "preferences.toml"

// Preferences is the persisted document.
type Preferences struct {
	// LastSyncTime is the unix time of the last successful full sync.
	LastSyncTime int64 `toml:"last_sync_time"`

	TutorialShown      bool `toml:"tutorial_shown"`
	ReviewHelpShown    bool `toml:"review_help_shown"`
	DeckImageHintShown bool `toml:"deck_image_hint_shown"`
}

// Default returns the preferences of a fresh install.
func Default() *Preferences {
	return &Preferences{}
}

// Load reads the document at path. A missing file yields Default().
func Load(path string) (*Preferences, error) {
	p := Default()

	_, err := toml.DecodeFile(path, p)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}

	if err != nil {
		return nil, fmt.Errorf("prefs: reading %s: %w", path, err)
	}

	return p, nil
}

// Save writes p to path atomically.
func Save(path string, p *Preferences) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("prefs: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("prefs: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".preferences-*.tmp")
	if err != nil {
		return fmt.Errorf("prefs: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("prefs: writing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("prefs: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("prefs: renaming: %w", err)
	}

	return nil
}
