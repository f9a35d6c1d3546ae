package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flashsync/internal/collection"
	"github.com/tonimelisma/flashsync/internal/mediadb"
	"github.com/tonimelisma/flashsync/internal/remote"
)

const testRootFolder = "flashsync"

// testLogger returns a debug-level logger that writes to t.Log, so
// output only appears on failure or with -v.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// fixture is a data dir plus a LocalFS "remote" in a second temp dir.
type fixture struct {
	t          *testing.T
	ctx        context.Context
	layout     Layout
	remoteBase string
	store      *remote.LocalFS
	colls      *collection.Manager
	logger     *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := testLogger(t)
	dataDir := t.TempDir()
	remoteBase := t.TempDir()
	layout := NewLayout(dataDir, "", "")

	return &fixture{
		t:          t,
		ctx:        context.Background(),
		layout:     layout,
		remoteBase: remoteBase,
		store:      remote.NewLocalFS(remoteBase, testRootFolder, nil, logger),
		colls:      collection.NewManager(layout.CollectionPath, logger),
		logger:     logger,
	}
}

// remotePath returns the on-disk path of a remote file.
func (f *fixture) remotePath(rel string) string {
	return filepath.Join(f.remoteBase, testRootFolder, filepath.FromSlash(rel))
}

// addDecks creates decks whose ids equal the given values.
func (f *fixture) addDecks(ids ...int64) {
	f.t.Helper()

	h, err := f.colls.Checkout(f.ctx)
	require.NoError(f.t, err)
	defer h.Release()

	for _, id := range ids {
		got, err := h.Collection().AddDeck(f.ctx, "deck "+strconv.FormatInt(id, 10), id)
		require.NoError(f.t, err)
		require.Equal(f.t, id, got)
	}
}

func (f *fixture) deckIDs() map[int64]bool {
	f.t.Helper()

	h, err := f.colls.Checkout(f.ctx)
	require.NoError(f.t, err)
	defer h.Release()

	ids, err := h.Collection().DeckIDs(f.ctx)
	require.NoError(f.t, err)

	return ids
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// writeIndex creates a media index at path holding recs.
func writeIndex(t *testing.T, path string, lastSync int64, recs ...mediadb.Record) {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))

	db, err := mediadb.Open(ctx, path, nil)
	require.NoError(t, err)

	for _, rec := range recs {
		require.NoError(t, db.Upsert(ctx, rec))
	}

	require.NoError(t, db.SetLastSync(ctx, lastSync))
	require.NoError(t, db.Close())
}

// readIndex opens the index at path and returns its rows and mark.
func readIndex(t *testing.T, path string) (map[string]mediadb.Record, int64) {
	t.Helper()

	ctx := context.Background()

	db, err := mediadb.Open(ctx, path, nil)
	require.NoError(t, err)
	defer db.Close()

	recs, err := db.Records(ctx)
	require.NoError(t, err)

	last, err := db.LastSync(ctx)
	require.NoError(t, err)

	out := make(map[string]mediadb.Record, len(recs))
	for _, r := range recs {
		out[r.RelativePath] = r
	}

	return out, last
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

// faultyStore injects failures into a working store.
type faultyStore struct {
	remote.Store

	uploadErr   func(remotePath string) error
	panicOnRoot bool
}

func (s *faultyStore) Upload(ctx context.Context, source, remotePath string) error {
	if s.uploadErr != nil {
		if err := s.uploadErr(remotePath); err != nil {
			return err
		}
	}

	return s.Store.Upload(ctx, source, remotePath)
}

func (s *faultyStore) EnsureRootFolder(ctx context.Context) error {
	if s.panicOnRoot {
		panic("root folder exploded")
	}

	return s.Store.EnsureRootFolder(ctx)
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu       gosync.Mutex
	replaced int
	images   []imageEvent
}

type imageEvent struct {
	deckID   int64
	path     string
	modified int64
}

func (n *recordingNotifier) CollectionReplaced() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.replaced++
}

func (n *recordingNotifier) DeckImageChanged(deckID int64, imagePath string, modified int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.images = append(n.images, imageEvent{deckID: deckID, path: imagePath, modified: modified})
}

type fixedConfirmer bool

func (c fixedConfirmer) ConfirmForceMediaUpload(context.Context) bool { return bool(c) }

// statusReporter forwards statuses to a channel without blocking.
type statusReporter struct {
	statuses chan string
}

func (r *statusReporter) SetStatus(text string) {
	select {
	case r.statuses <- text:
	default:
	}
}

func (r *statusReporter) SetProgress(int, int) {}
