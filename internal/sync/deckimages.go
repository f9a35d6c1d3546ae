package sync

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/tonimelisma/flashsync/internal/deckimage"
	"github.com/tonimelisma/flashsync/internal/remote"
)

// remoteImage is one deck image file in the remote images folder.
type remoteImage struct {
	entry deckimage.Entry
	name  string
}

// remoteImageEntry reads the deck and stamp from a remote image. A bare
// "<deckId><ext>" name, as left by copying a file in by hand, is dated by the
// backend's modification time instead.
func remoteImageEntry(it remote.Item) (deckimage.Entry, bool) {
	if e, _, err := deckimage.ParseRemoteName(it.Name); err == nil {
		return e, true
	}

	deckID, err := strconv.ParseInt(strings.TrimSuffix(it.Name, filepath.Ext(it.Name)), 10, 64)
	if err != nil || deckID <= 0 {
		return deckimage.Entry{}, false
	}

	modified := it.ModTime(0)
	if modified <= 0 {
		return deckimage.Entry{}, false
	}

	return deckimage.Entry{DeckID: deckID, Modified: modified}, true
}

// listRemoteImages groups the remote images by deck, newest first. A missing
// folder means no images.
func (p *pass) listRemoteImages(ctx context.Context) (map[int64][]remoteImage, error) {
	items, err := p.cfg.Store.ListChildren(ctx, RemoteImagesFolder)
	if errors.Is(err, remote.ErrNotFound) {
		return map[int64][]remoteImage{}, nil
	}

	if err != nil {
		return nil, err
	}

	out := make(map[int64][]remoteImage)

	for _, it := range items {
		if it.IsFolder {
			continue
		}

		e, ok := remoteImageEntry(it)
		if !ok {
			p.logger.Debug("skipping foreign file in remote images", slog.String("name", it.Name))
			continue
		}

		out[e.DeckID] = append(out[e.DeckID], remoteImage{entry: e, name: it.Name})
	}

	for _, imgs := range out {
		slices.SortFunc(imgs, func(a, b remoteImage) int {
			return cmp.Compare(b.entry.Modified, a.entry.Modified)
		})
	}

	return out, nil
}

// uploadDeckImages publishes every local image newer than the remote one,
// drops superseded remote versions, and deletes remote images of decks the
// collection no longer has.
func (p *pass) uploadDeckImages(ctx context.Context) error {
	local, err := p.images.Entries()
	if err != nil {
		return err
	}

	remoteImgs, err := p.listRemoteImages(ctx)
	if err != nil {
		return err
	}

	deckIDs, err := p.handle.Collection().DeckIDs(ctx)
	if err != nil {
		return err
	}

	ids := sortedKeys(local)

	for i, deckID := range ids {
		p.cfg.Reporter.SetProgress(i+1, len(ids))

		e := local[deckID]
		if !deckIDs[deckID] {
			continue
		}

		versions := remoteImgs[deckID]
		if len(versions) > 0 && versions[0].entry.Modified >= e.Modified {
			continue
		}

		imagePath, err := p.images.ImagePath(deckID)
		if err != nil {
			return err
		}

		if imagePath == "" {
			p.logger.Warn("deck image marker without image", slog.Int64("deck_id", deckID))
			continue
		}

		name := deckimage.RemoteName(e, strings.ToLower(filepath.Ext(imagePath)))
		if err := p.cfg.Store.Upload(ctx, imagePath, remote.Join(RemoteImagesFolder, name)); err != nil {
			return err
		}

		p.logger.Info("deck image uploaded", slog.Int64("deck_id", deckID), slog.String("name", name))

		for _, old := range versions {
			if old.name == name {
				continue
			}

			if err := p.cfg.Store.Delete(ctx, remote.Join(RemoteImagesFolder, old.name)); err != nil {
				return err
			}
		}
	}

	for _, deckID := range sortedKeys(remoteImgs) {
		if deckIDs[deckID] {
			continue
		}

		for _, img := range remoteImgs[deckID] {
			p.logger.Info("deleting image of deleted deck", slog.String("name", img.name))

			if err := p.cfg.Store.Delete(ctx, remote.Join(RemoteImagesFolder, img.name)); err != nil {
				return err
			}
		}
	}

	return nil
}

// downloadDeckImages installs every remote image newer than the local
// cache entry and reverts local images the remote no longer has. Each
// change is announced through the Notifier.
func (p *pass) downloadDeckImages(ctx context.Context) error {
	local, err := p.images.Entries()
	if err != nil {
		return err
	}

	remoteImgs, err := p.listRemoteImages(ctx)
	if err != nil {
		return err
	}

	stage := filepath.Join(p.cfg.Layout.TempDir, RemoteImagesFolder)
	ids := sortedKeys(remoteImgs)

	for i, deckID := range ids {
		p.cfg.Reporter.SetProgress(i+1, len(ids))

		newest := remoteImgs[deckID][0]
		if e, ok := local[deckID]; ok && e.Modified >= newest.entry.Modified {
			continue
		}

		tmp := filepath.Join(stage, newest.name)
		if err := p.cfg.Store.Download(ctx, remote.Join(RemoteImagesFolder, newest.name), tmp); err != nil {
			return err
		}

		installed, err := p.images.Set(deckID, tmp, newest.entry.Modified)
		if err != nil {
			return err
		}

		p.logger.Info("deck image downloaded", slog.Int64("deck_id", deckID), slog.String("name", newest.name))
		p.cfg.Notifier.DeckImageChanged(deckID, installed, newest.entry.Modified)
	}

	for _, deckID := range sortedKeys(local) {
		if _, ok := remoteImgs[deckID]; ok {
			continue
		}

		if err := p.images.Revert(deckID); err != nil {
			return err
		}

		p.logger.Info("deck image reverted to default", slog.Int64("deck_id", deckID))
		p.cfg.Notifier.DeckImageChanged(deckID, "", 0)
	}

	return nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
