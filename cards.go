package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/flashsync/internal/deckimage"
	"github.com/tonimelisma/flashsync/internal/mediadb"
)

// mediaFilePermissions is the mode of files copied into the media folder.
const mediaFilePermissions = 0o600

// errUnknownDeck is returned when a command names a deck that does not exist.
var errUnknownDeck = errors.New("no such deck")

func newMediaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Add or remove deck media files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <deck-id> <file>",
		Short: "Copy a file into a deck's media and record it for the next sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deckID, err := parseDeckID(args[0])
			if err != nil {
				return err
			}

			rel, err := addMedia(cmd.Context(), newSession(resolvedCfg, buildLogger()), deckID, args[1], time.Now())
			if err != nil {
				return err
			}

			statusf("Added %s.\n", rel)

			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <deck-id> <name>",
		Short: "Delete a deck media file and record the deletion for the next sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deckID, err := parseDeckID(args[0])
			if err != nil {
				return err
			}

			rel, err := removeMedia(cmd.Context(), newSession(resolvedCfg, buildLogger()), deckID, args[1], time.Now())
			if err != nil {
				return err
			}

			statusf("Removed %s.\n", rel)

			return nil
		},
	})

	return cmd
}

func newDeckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deck",
		Short: "Manage decks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := addDeck(cmd.Context(), newSession(resolvedCfg, buildLogger()), args[0], time.Now())
			if err != nil {
				return err
			}

			fmt.Println(id)

			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List decks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listDecks(cmd.Context(), newSession(resolvedCfg, buildLogger()), os.Stdout)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "image <deck-id> <file>",
		Short: "Set a deck's cover image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deckID, err := parseDeckID(args[0])
			if err != nil {
				return err
			}

			path, err := setDeckImage(cmd.Context(), newSession(resolvedCfg, buildLogger()), deckID, args[1], time.Now())
			if err != nil {
				return err
			}

			statusf("Deck image installed at %s.\n", path)

			return nil
		},
	})

	return cmd
}

func parseDeckID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid deck id %q", s)
	}

	return id, nil
}

// requireDeck fails with errUnknownDeck unless the collection has deckID.
func (s *session) requireDeck(ctx context.Context, deckID int64) error {
	if err := s.ensureDirs(); err != nil {
		return err
	}

	h, err := s.collections.Checkout(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	ids, err := h.Collection().DeckIDs(ctx)
	if err != nil {
		return err
	}

	if !ids[deckID] {
		return fmt.Errorf("%w: %d", errUnknownDeck, deckID)
	}

	return nil
}

// addMedia copies src into the deck's media folder and records the add.
// Returns the media relative path.
func addMedia(ctx context.Context, s *session, deckID int64, src string, now time.Time) (string, error) {
	unlock, err := s.lockData(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	if err := s.requireDeck(ctx, deckID); err != nil {
		return "", err
	}

	name := mediadb.Normalize(filepath.Base(src))
	dest := s.layout.MediaFile(deckID, name)

	if err := copyIntoPlace(src, dest); err != nil {
		return "", err
	}

	rel := mediadb.RelativePath(deckID, name)
	if err := recordMediaChange(ctx, s, rel, true, now); err != nil {
		return "", err
	}

	return rel, nil
}

// removeMedia deletes a media file and records the deletion. A file that is
// already gone is still recorded if the index knows it.
func removeMedia(ctx context.Context, s *session, deckID int64, name string, now time.Time) (string, error) {
	unlock, err := s.lockData(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	name = mediadb.Normalize(name)
	rel := mediadb.RelativePath(deckID, name)

	err = os.Remove(s.layout.MediaFile(deckID, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("removing media file: %w", err)
	}

	if errors.Is(err, fs.ErrNotExist) {
		known, lookupErr := mediaKnown(ctx, s, rel)
		if lookupErr != nil {
			return "", lookupErr
		}

		if !known {
			return "", fmt.Errorf("no media file %s", rel)
		}
	}

	if err := recordMediaChange(ctx, s, rel, false, now); err != nil {
		return "", err
	}

	return rel, nil
}

func mediaKnown(ctx context.Context, s *session, rel string) (bool, error) {
	if _, err := os.Stat(s.layout.MediaDBPath); err != nil {
		return false, nil //nolint:nilerr // no index means nothing is known
	}

	db, err := mediadb.Open(ctx, s.layout.MediaDBPath, s.logger)
	if err != nil {
		return false, err
	}
	defer db.Close()

	rec, err := db.Get(ctx, rel)
	if err != nil {
		return false, err
	}

	return rec != nil && rec.IsAdded, nil
}

func recordMediaChange(ctx context.Context, s *session, rel string, added bool, now time.Time) error {
	if err := s.ensureDirs(); err != nil {
		return err
	}

	db, err := mediadb.Open(ctx, s.layout.MediaDBPath, s.logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.RecordChange(ctx, rel, added, now.Unix())
}

// addDeck creates a deck named name and returns its id.
func addDeck(ctx context.Context, s *session, name string, now time.Time) (int64, error) {
	if name == "" {
		return 0, errors.New("deck name must not be empty")
	}

	unlock, err := s.lockData(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if err := s.ensureDirs(); err != nil {
		return 0, err
	}

	h, err := s.collections.Checkout(ctx)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	return h.Collection().AddDeck(ctx, name, now.UnixMilli())
}

func listDecks(ctx context.Context, s *session, w io.Writer) error {
	unlock, err := s.lockData(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.ensureDirs(); err != nil {
		return err
	}

	h, err := s.collections.Checkout(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	decks, err := h.Collection().Decks(ctx)
	if err != nil {
		return err
	}

	for _, d := range decks {
		fmt.Fprintf(w, "%d\t%s\n", d.ID, d.Name)
	}

	return nil
}

// setDeckImage installs src as the deck's cover, stamped now so the next
// upload pass sends it.
func setDeckImage(ctx context.Context, s *session, deckID int64, src string, now time.Time) (string, error) {
	unlock, err := s.lockData(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	if err := s.requireDeck(ctx, deckID); err != nil {
		return "", err
	}

	cache := deckimage.NewCache(s.layout.ImagesDir, s.layout.ImageCacheDir, s.logger)

	return cache.Set(deckID, src, now.Unix())
}

// copyIntoPlace copies src to dest through a temp file in dest's folder.
func copyIntoPlace(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), dataDirPermissions); err != nil {
		return fmt.Errorf("creating media folder: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".media-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()

		return fmt.Errorf("copying %s: %w", src, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, mediaFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
