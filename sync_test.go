package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flashsync/internal/remote"
	"github.com/tonimelisma/flashsync/internal/sync"
)

func TestDescribeSyncError_StageError(t *testing.T) {
	err := describeSyncError(&sync.StageError{
		Stage:    sync.StagePreparingFolders,
		Category: remote.CategoryQuotaExceeded,
		Message:  "The remote store is full.",
		Err:      errors.New("remote: quota exceeded"),
	})

	assert.EqualError(t, err, "sync failed while preparing folders: The remote store is full.")
}

func TestDescribeSyncError_PassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, describeSyncError(plain))

	noMessage := &sync.StageError{Stage: sync.StageUploading, Err: plain}
	assert.ErrorIs(t, describeSyncError(noMessage), plain)
}

func TestPrintReport_CollectionOnly(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &sync.Report{Direction: sync.DirectionDownload, Duration: 1500 * time.Millisecond})

	assert.Equal(t, "Collection downloaded in 1.5s.\n", buf.String())
}

func TestPrintReport_Media(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &sync.Report{
		Direction: sync.DirectionUpload,
		Duration:  2 * time.Second,
		Media: &sync.MediaReport{
			FirstSync:     true,
			Downloaded:    1200,
			Uploaded:      3,
			DeletedRemote: 1,
			Conflicts:     []sync.Conflict{{RelativePath: "5/a.png"}},
			OutOfSync:     []string{"9/b.png", "9/c.png"},
			SkippedFiles:  []string{"5/d.png"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Collection uploaded in 2s.")
	assert.Contains(t, out, "First media sync: remote index created.")
	assert.Contains(t, out, "Media: 1,200 downloaded, 3 uploaded, 0 deleted locally, 1 deleted remotely.")
	assert.Contains(t, out, "1 conflicting change resolved in favor of the remote.")
	assert.Contains(t, out, "2 media files left out of sync.")
	assert.Contains(t, out, "1 media file failed and will be retried:\n  5/d.png\n")
}

func TestPromptConfirmer(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		input       string
		interactive bool
		want        bool
	}{
		{"yes", "yes\n", true, true},
		{"y uppercase", "Y\n", true, true},
		{"no", "n\n", true, false},
		{"empty line", "\n", true, false},
		{"eof", "", true, false},
		{"yes without newline", "y", true, true},
		{"not a terminal", "y\n", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := &promptConfirmer{in: strings.NewReader(tt.input), out: &out, interactive: tt.interactive}

			assert.Equal(t, tt.want, c.ConfirmForceMediaUpload(ctx))

			if tt.interactive {
				assert.Contains(t, out.String(), "[y/N]")
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestPromptConfirmer_CanceledContextDeclines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &promptConfirmer{in: strings.NewReader("y\n"), out: &bytes.Buffer{}, interactive: true}
	assert.False(t, c.ConfirmForceMediaUpload(ctx))
}

func TestLogNotifier(t *testing.T) {
	n := &logNotifier{logger: testLogger(t)}

	n.CollectionReplaced()
	n.DeckImageChanged(5, "/data/deck-images/5.png", 300)
	n.DeckImageChanged(5, "", 0)
}

func TestSyncCmd_LocalBackendEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.load(t)

	ctx := context.Background()
	s := newSession(cfg, testLogger(t))

	deckID, err := addDeck(ctx, s, "Birds", testNow)
	require.NoError(t, err)

	rel, err := addMedia(ctx, s, deckID, writeSource(t, "robin.mp3", "tweet"), testNow)
	require.NoError(t, err)

	require.NoError(t, env.execute(t, "sync"))

	remoteRoot := filepath.Join(env.remoteBase, cfg.RootFolder)
	assert.FileExists(t, filepath.Join(remoteRoot, sync.RemoteCollection))
	assert.FileExists(t, filepath.Join(remoteRoot, sync.RemotePrefs))
	assert.FileExists(t, filepath.Join(remoteRoot, sync.RemoteMediaIndex))
	assert.FileExists(t, filepath.Join(remoteRoot, sync.RemoteMediaFolder, filepath.FromSlash(rel)))

	rec, err := openMediaDB(t, s).Get(ctx, rel)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Dirty, "uploaded change is clean")
}

func TestSyncCmd_NoMediaSkipsMedia(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.load(t)

	require.NoError(t, env.execute(t, "sync", "--no-media"))

	remoteRoot := filepath.Join(env.remoteBase, cfg.RootFolder)
	assert.FileExists(t, filepath.Join(remoteRoot, sync.RemoteCollection))
	assert.NoFileExists(t, filepath.Join(remoteRoot, sync.RemoteMediaIndex))
}

func TestSyncCmd_UnreachableStore(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.load(t)

	require.NoError(t, os.RemoveAll(env.remoteBase))

	err := env.execute(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync failed while authenticating")
	assert.NoDirExists(t, filepath.Join(env.remoteBase, cfg.RootFolder))
}
