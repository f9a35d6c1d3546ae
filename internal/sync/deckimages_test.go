package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flashsync/internal/deckimage"
	"github.com/tonimelisma/flashsync/internal/prefs"
	"github.com/tonimelisma/flashsync/internal/remote"
)

func TestRemoteImageEntry(t *testing.T) {
	mtime := int64(300)

	tests := []struct {
		name string
		item remote.Item
		want deckimage.Entry
		ok   bool
	}{
		{"stamped name wins over mtime", remote.Item{Name: "42_250.png", LastModified: &mtime}, deckimage.Entry{DeckID: 42, Modified: 250}, true},
		{"bare name dated by mtime", remote.Item{Name: "42.png", LastModified: &mtime}, deckimage.Entry{DeckID: 42, Modified: 300}, true},
		{"bare name without mtime", remote.Item{Name: "42.png"}, deckimage.Entry{}, false},
		{"foreign file", remote.Item{Name: "notes.txt", LastModified: &mtime}, deckimage.Entry{}, false},
		{"non-positive deck id", remote.Item{Name: "0.png", LastModified: &mtime}, deckimage.Entry{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := remoteImageEntry(tt.item)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFullSync_DownloadsUnstampedDeckImage(t *testing.T) {
	f := newFixture(t)
	f.addDecks(5)
	require.NoError(t, prefs.Save(f.layout.PrefsPath, &prefs.Preferences{LastSyncTime: 100}))
	f.seedRemoteCollection(200, 42)

	bare := f.remotePath("deck-images/42.png")
	writeFile(t, bare, "copied in by hand")
	require.NoError(t, os.Chtimes(bare, time.Unix(300, 0), time.Unix(300, 0)))

	notifier := &recordingNotifier{}
	fs, _ := f.fullSync(f.store, notifier, false)
	fs.diskFree = func(string) (uint64, error) { return 1 << 40, nil }

	_, err := fs.Run(f.ctx)
	require.NoError(t, err)

	installed := filepath.Join(f.layout.ImagesDir, "42.png")
	assert.Equal(t, []imageEvent{{deckID: 42, path: installed, modified: 300}}, notifier.images)

	cache := deckimage.NewCache(f.layout.ImagesDir, f.layout.ImageCacheDir, f.logger)
	entries, err := cache.Entries()
	require.NoError(t, err)
	assert.Equal(t, map[int64]deckimage.Entry{42: {DeckID: 42, Modified: 300}}, entries)
}
