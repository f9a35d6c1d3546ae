package sync

import (
	"path/filepath"
	"strconv"

	"github.com/tonimelisma/flashsync/internal/collection"
	"github.com/tonimelisma/flashsync/internal/prefs"
)

// Remote names, relative to the store's root folder.
const (
	RemoteCollection   = collection.FileName
	RemotePrefs        = prefs.FileName
	RemoteImagesFolder = "deck-images"
	RemoteMediaFolder  = "media"
	RemoteMediaIndex   = "media-index.db"
)

// tempFolderName is fixed so a crashed pass's leftovers are cleared by the
// next one.
const tempFolderName = "flashsync-tmp"

// Layout is where the local artifacts live.
type Layout struct {
	CollectionPath string
	PrefsPath      string
	MediaDir       string
	MediaDBPath    string
	SyncLogPath    string
	ImagesDir      string
	ImageCacheDir  string
	TempDir        string
}

// NewLayout places every artifact under dataDir. collectionPath and tempRoot
// override the defaults when non-empty.
func NewLayout(dataDir, collectionPath, tempRoot string) Layout {
	if collectionPath == "" {
		collectionPath = filepath.Join(dataDir, collection.FileName)
	}

	if tempRoot == "" {
		tempRoot = dataDir
	}

	return Layout{
		CollectionPath: collectionPath,
		PrefsPath:      filepath.Join(dataDir, prefs.FileName),
		MediaDir:       filepath.Join(dataDir, "media"),
		MediaDBPath:    filepath.Join(dataDir, "media.db"),
		SyncLogPath:    filepath.Join(dataDir, "media-sync-log.db"),
		ImagesDir:      filepath.Join(dataDir, "deck-images"),
		ImageCacheDir:  filepath.Join(dataDir, "deck-image-cache"),
		TempDir:        filepath.Join(tempRoot, tempFolderName),
	}
}

// MediaFile returns the local path of a media file.
func (l Layout) MediaFile(deckID int64, name string) string {
	return filepath.Join(l.MediaDir, strconv.FormatInt(deckID, 10), name)
}

// remoteMediaPath returns the remote path of a media relative path
// "<deckId>/<name>".
func remoteMediaPath(relPath string) string {
	return RemoteMediaFolder + "/" + relPath
}
