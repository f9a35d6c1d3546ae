// Package deckimage manages deck cover images and their cache markers.
//
// A deck's image lives at <images>/<deckId><ext>. Its modification time is
// kept in the name of a zero-byte marker, <cache>/<deckId>_<unixTime>,
// because copying an image between devices does not preserve file mtimes.
// Remotely the image is stored as <deckId>_<unixTime><ext>, carrying the
// same stamp.
package deckimage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Separator splits the deck id from the timestamp in marker and remote names.
const Separator = "_"

// Entry identifies one deck image version.
type Entry struct {
	DeckID   int64
	Modified int64
}

// Name returns the marker name "<deckId>_<modified>".
func (e Entry) Name() string {
	return strconv.FormatInt(e.DeckID, 10) + Separator + strconv.FormatInt(e.Modified, 10)
}

// ParseEntry parses a marker name.
func ParseEntry(name string) (Entry, error) {
	deckPart, tsPart, ok := strings.Cut(name, Separator)
	if !ok {
		return Entry{}, fmt.Errorf("deckimage: %q has no separator", name)
	}

	deckID, err := strconv.ParseInt(deckPart, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("deckimage: bad deck id in %q: %w", name, err)
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("deckimage: bad timestamp in %q: %w", name, err)
	}

	return Entry{DeckID: deckID, Modified: ts}, nil
}

// RemoteName returns the remote file name for e with extension ext.
func RemoteName(e Entry, ext string) string {
	return e.Name() + ext
}

// ParseRemoteName splits a remote image name into its entry and extension.
func ParseRemoteName(name string) (Entry, string, error) {
	ext := filepath.Ext(name)

	e, err := ParseEntry(strings.TrimSuffix(name, ext))
	if err != nil {
		return Entry{}, "", err
	}

	return e, ext, nil
}

// Cache is the local image folder plus its marker folder.
type Cache struct {
	imagesDir string
	cacheDir  string
	logger    *slog.Logger
}

// NewCache returns a Cache over the two folders.
func NewCache(imagesDir, cacheDir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{imagesDir: imagesDir, cacheDir: cacheDir, logger: logger}
}

// Ensure creates both folders.
func (c *Cache) Ensure() error {
	for _, dir := range []string{c.imagesDir, c.cacheDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("deckimage: creating %s: %w", dir, err)
		}
	}

	return nil
}

// Entries returns the newest marker per deck. Unparsable names are skipped.
func (c *Cache) Entries() (map[int64]Entry, error) {
	dirEntries, err := os.ReadDir(c.cacheDir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[int64]Entry{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("deckimage: reading %s: %w", c.cacheDir, err)
	}

	out := make(map[int64]Entry, len(dirEntries))

	for _, de := range dirEntries {
		e, parseErr := ParseEntry(de.Name())
		if parseErr != nil {
			c.logger.Debug("skipping foreign file in image cache", slog.String("name", de.Name()))
			continue
		}

		if cur, ok := out[e.DeckID]; !ok || e.Modified > cur.Modified {
			out[e.DeckID] = e
		}
	}

	return out, nil
}

// ImagePath returns the path of the deck's current image, or "" if the deck
// uses the default image.
func (c *Cache) ImagePath(deckID int64) (string, error) {
	matches, err := filepath.Glob(filepath.Join(c.imagesDir, strconv.FormatInt(deckID, 10)+".*"))
	if err != nil {
		return "", fmt.Errorf("deckimage: globbing images: %w", err)
	}

	if len(matches) == 0 {
		return "", nil
	}

	return matches[0], nil
}

// Set installs src as the deck's image with the given modification stamp,
// replacing any previous image and marker. Returns the installed path.
func (c *Cache) Set(deckID int64, src string, modified int64) (string, error) {
	if err := c.Ensure(); err != nil {
		return "", err
	}

	if err := c.Revert(deckID); err != nil {
		return "", err
	}

	dest := filepath.Join(c.imagesDir, strconv.FormatInt(deckID, 10)+strings.ToLower(filepath.Ext(src)))
	if err := copyFile(src, dest); err != nil {
		return "", err
	}

	marker := filepath.Join(c.cacheDir, Entry{DeckID: deckID, Modified: modified}.Name())
	if err := os.WriteFile(marker, nil, 0o600); err != nil {
		return "", fmt.Errorf("deckimage: writing marker %s: %w", marker, err)
	}

	c.logger.Debug("deck image set",
		slog.Int64("deck_id", deckID),
		slog.Int64("modified", modified),
	)

	return dest, nil
}

// Revert removes the deck's image and markers so the deck falls back to the
// default image.
func (c *Cache) Revert(deckID int64) error {
	prefix := strconv.FormatInt(deckID, 10)

	images, err := filepath.Glob(filepath.Join(c.imagesDir, prefix+".*"))
	if err != nil {
		return fmt.Errorf("deckimage: globbing images: %w", err)
	}

	markers, err := filepath.Glob(filepath.Join(c.cacheDir, prefix+Separator+"*"))
	if err != nil {
		return fmt.Errorf("deckimage: globbing markers: %w", err)
	}

	for _, p := range append(images, markers...) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deckimage: removing %s: %w", p, err)
		}
	}

	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("deckimage: opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("deckimage: creating %s: %w", dest, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("deckimage: copying to %s: %w", dest, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("deckimage: closing %s: %w", dest, err)
	}

	return nil
}
