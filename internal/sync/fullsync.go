// Package sync implements the full collection sync pass and the media
// synchronizer it drives.
//
// A pass moves through fixed stages: authenticate, prepare folders, then
// either upload or download the collection and deck images as one global
// decision, then reconcile media file by file. Cleanup always runs last.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/tonimelisma/flashsync/internal/collection"
	"github.com/tonimelisma/flashsync/internal/deckimage"
	"github.com/tonimelisma/flashsync/internal/metrics"
	"github.com/tonimelisma/flashsync/internal/prefs"
	"github.com/tonimelisma/flashsync/internal/remote"
)

// remotePrefsCopy is the temp name of the downloaded remote preferences.
const remotePrefsCopy = "remote-" + prefs.FileName

// Config wires a FullSync.
type Config struct {
	Store       remote.Store
	Collections *collection.Manager
	Layout      Layout

	// SyncMedia enables the media stage.
	SyncMedia bool

	Reporter  Reporter
	Notifier  Notifier
	Confirmer Confirmer
	Metrics   *metrics.Recorder
	Logger    *slog.Logger

	// Lock, when set, is held from the first stage through cleanup so other
	// processes using the same data directory wait for the pass.
	Lock Locker
}

// Locker grants exclusive use of the local data for one pass.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Report summarizes a pass.
type Report struct {
	RunID     string
	Direction Direction
	// State holds both sides' last sync times once the collection step
	// finished.
	State    SyncState
	Media    *MediaReport
	Duration time.Duration
}

// FullSync runs full sync passes against one store.
type FullSync struct {
	cfg    Config
	logger *slog.Logger
	images *deckimage.Cache

	nowFunc     func() time.Time
	cleanupFunc func(dir string) error
	diskFree    func(path string) (uint64, error)
}

// NewFullSync creates a FullSync. Nil Reporter, Notifier, Confirmer and
// Logger get no-op defaults.
func NewFullSync(cfg Config) *FullSync {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Reporter == nil {
		cfg.Reporter = nopReporter{}
	}

	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}

	if cfg.Confirmer == nil {
		cfg.Confirmer = declineConfirmer{}
	}

	return &FullSync{
		cfg:         cfg,
		logger:      cfg.Logger,
		images:      deckimage.NewCache(cfg.Layout.ImagesDir, cfg.Layout.ImageCacheDir, cfg.Logger),
		nowFunc:     time.Now,
		cleanupFunc: os.RemoveAll,
		diskFree:    diskFree,
	}
}

// pass is the state of one Run.
type pass struct {
	*FullSync

	logger *slog.Logger
	stage  Stage
	report *Report
	handle *collection.Handle

	directionChosen bool
}

// Run performs one full sync pass. On failure the returned error is a
// *StageError carrying the stage and a one-line user message; the report
// holds whatever was learned before the failure.
func (f *FullSync) Run(ctx context.Context) (*Report, error) {
	start := f.nowFunc()
	runID := uuid.NewString()

	p := &pass{
		FullSync: f,
		logger:   f.logger.With(slog.String("run_id", runID)),
		report:   &Report{RunID: runID},
	}

	if f.cfg.Lock != nil {
		unlock, err := f.cfg.Lock.Lock(ctx)
		if err != nil {
			p.logger.Warn("sync pass not started", slog.String("error", err.Error()))
			return p.report, p.fail(err)
		}
		defer unlock()
	}

	p.logger.Info("sync pass starting")

	err := p.execute(ctx)

	end := f.nowFunc()
	p.report.Duration = end.Sub(start)

	direction := ""
	if p.directionChosen {
		direction = p.report.Direction.String()
	}

	if err != nil {
		f.cfg.Metrics.PassCompleted(direction, metrics.OutcomeFailure, p.report.Duration, end)
		p.logger.Error("sync pass failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", p.report.Duration),
		)

		return p.report, err
	}

	f.cfg.Metrics.PassCompleted(direction, metrics.OutcomeSuccess, p.report.Duration, end)
	p.logger.Info("sync pass complete",
		slog.String("direction", direction),
		slog.Duration("duration", p.report.Duration),
	)

	return p.report, nil
}

// execute walks the stages. Cleanup runs on every exit, panics included.
func (p *pass) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = p.fail(fmt.Errorf("sync: unexpected panic: %v", r))
		}

		p.cleanup()
	}()

	store := p.cfg.Store

	p.enter(StageAuthenticating, "Signing in")
	store.Init()

	if err := store.Authenticate(ctx); err != nil {
		return p.fail(err)
	}

	p.enter(StagePreparingFolders, "Preparing folders")

	remotePrefs, localPrefs, err := p.prepare(ctx)
	if err != nil {
		return p.fail(err)
	}

	state := SyncState{LocalLastSync: localPrefs.LastSyncTime}
	if remotePrefs != nil {
		remoteLast := remotePrefs.LastSyncTime
		state.RemoteLastSync = &remoteLast
	}

	p.report.Direction = ChooseDirection(state)
	p.directionChosen = true

	p.logger.Info("sync direction chosen",
		slog.String("direction", p.report.Direction.String()),
		slog.Int64("local_last_sync", state.LocalLastSync),
		slog.Bool("remote_prefs_found", remotePrefs != nil),
	)

	p.handle, err = p.cfg.Collections.Checkout(ctx)
	if err != nil {
		return p.fail(err)
	}

	if p.report.Direction == DirectionUpload {
		p.enter(StageUploading, "Uploading collection")

		if err := p.upload(ctx, localPrefs); err != nil {
			return p.fail(err)
		}

		state.LocalLastSync = localPrefs.LastSyncTime
		state.RemoteLastSync = &localPrefs.LastSyncTime
	} else {
		p.enter(StageDownloading, "Downloading collection")

		if err := p.download(ctx, remotePrefs); err != nil {
			return p.fail(err)
		}

		state.LocalLastSync = remotePrefs.LastSyncTime
	}

	p.report.State = state

	if p.cfg.SyncMedia {
		p.enter(StageSyncingMedia, "Syncing media")

		if err := p.syncMedia(ctx); err != nil {
			return p.fail(err)
		}
	}

	p.enter(StageFinished, "Sync finished")

	return nil
}

func (p *pass) enter(stage Stage, status string) {
	p.stage = stage
	p.logger.Info("sync stage", slog.String("stage", stage.String()))
	p.cfg.Reporter.SetStatus(status)
}

// fail wraps err as the pass's StageError for the current stage.
func (p *pass) fail(err error) error {
	return &StageError{
		Stage:    p.stage,
		Category: remote.Classify(err),
		Message:  userMessage(p.cfg.Store, err),
		Err:      err,
	}
}

// cleanup releases the collection, removes the temp folder once and closes
// the store. Failures are logged; they never replace the pass's error.
func (p *pass) cleanup() {
	failed := p.stage
	p.stage = StageCleanup

	p.logger.Debug("sync cleanup", slog.String("after", failed.String()))

	if p.handle != nil {
		if err := p.handle.Release(); err != nil {
			p.logger.Warn("releasing collection failed", slog.String("error", err.Error()))
		}
	}

	if err := p.cleanupFunc(p.cfg.Layout.TempDir); err != nil {
		p.logger.Warn("removing temp folder failed",
			slog.String("path", p.cfg.Layout.TempDir),
			slog.String("error", err.Error()),
		)
	}

	if err := p.cfg.Store.Close(); err != nil {
		p.logger.Warn("closing store failed", slog.String("error", err.Error()))
	}
}

// prepare readies local and remote folders and loads both preference
// documents. remotePrefs is nil when the remote has none.
func (p *pass) prepare(ctx context.Context) (remotePrefs, localPrefs *prefs.Preferences, err error) {
	if err := p.images.Ensure(); err != nil {
		return nil, nil, err
	}

	temp := p.cfg.Layout.TempDir
	if err := os.RemoveAll(temp); err != nil {
		return nil, nil, fmt.Errorf("sync: clearing temp folder: %w", err)
	}

	if err := os.MkdirAll(temp, 0o700); err != nil {
		return nil, nil, fmt.Errorf("sync: creating temp folder: %w", err)
	}

	if err := p.cfg.Store.EnsureRootFolder(ctx); err != nil {
		return nil, nil, err
	}

	item, err := p.cfg.Store.TryGetItem(ctx, RemotePrefs, "")
	if err != nil {
		return nil, nil, err
	}

	if item != nil {
		dest := filepath.Join(temp, remotePrefsCopy)
		if err := p.cfg.Store.Download(ctx, RemotePrefs, dest); err != nil {
			return nil, nil, err
		}

		remotePrefs, err = prefs.Load(dest)
		if err != nil {
			return nil, nil, err
		}
	}

	localPrefs, err = prefs.Load(p.cfg.Layout.PrefsPath)
	if err != nil {
		return nil, nil, err
	}

	return remotePrefs, localPrefs, nil
}

// upload stamps and publishes the local collection. The preferences go
// last so a remote collection is never newer than its stamp claims.
func (p *pass) upload(ctx context.Context, localPrefs *prefs.Preferences) error {
	// Checked before stamping so a damaged collection is neither published
	// nor marked as synced.
	if err := p.handle.Collection().Check(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptCollection, err)
	}

	localPrefs.LastSyncTime = p.nowFunc().Unix()
	if err := prefs.Save(p.cfg.Layout.PrefsPath, localPrefs); err != nil {
		return err
	}

	temp := p.cfg.Layout.TempDir
	colCopy := filepath.Join(temp, RemoteCollection)
	prefsCopy := filepath.Join(temp, RemotePrefs)

	if err := p.handle.Collection().SnapshotTo(ctx, colCopy); err != nil {
		return err
	}

	if err := prefs.Save(prefsCopy, localPrefs); err != nil {
		return err
	}

	if err := p.cfg.Store.Upload(ctx, colCopy, RemoteCollection); err != nil {
		return err
	}

	if err := p.cfg.Store.Upload(ctx, prefsCopy, RemotePrefs); err != nil {
		return err
	}

	p.logger.Info("collection uploaded", slog.Int64("last_sync", localPrefs.LastSyncTime))

	return p.uploadDeckImages(ctx)
}

// download replaces the local collection with the remote one after checking
// free space and validating the copy, then adopts the remote preferences.
func (p *pass) download(ctx context.Context, remotePrefs *prefs.Preferences) error {
	item, err := p.cfg.Store.GetItem(ctx, RemoteCollection)
	if err != nil {
		return err
	}

	if err := p.checkFreeSpace(item.Size); err != nil {
		return err
	}

	colCopy := filepath.Join(p.cfg.Layout.TempDir, RemoteCollection)
	if err := p.cfg.Store.Download(ctx, RemoteCollection, colCopy); err != nil {
		return err
	}

	if err := collection.Validate(ctx, colCopy, p.logger); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptDownload, err)
	}

	if err := p.handle.Replace(ctx, colCopy); err != nil {
		return err
	}

	p.logger.Info("collection replaced", slog.Int64("size", item.Size))
	p.cfg.Notifier.CollectionReplaced()

	if err := p.downloadDeckImages(ctx); err != nil {
		return err
	}

	return prefs.Save(p.cfg.Layout.PrefsPath, remotePrefs)
}

// checkFreeSpace fails with ErrInsufficientSpace when the temp folder or
// the collection's folder cannot hold size bytes. An unknown free space
// does not block.
func (p *pass) checkFreeSpace(size int64) error {
	if size <= 0 {
		return nil
	}

	dirs := []string{p.cfg.Layout.TempDir, filepath.Dir(p.cfg.Layout.CollectionPath)}

	for _, dir := range dirs {
		free, err := p.diskFree(dir)
		if err != nil {
			p.logger.Warn("free space unknown", slog.String("path", dir), slog.String("error", err.Error()))
			continue
		}

		if free < uint64(size) {
			return fmt.Errorf("%w: %s needs %s, %s free",
				ErrInsufficientSpace, dir, humanize.IBytes(uint64(size)), humanize.IBytes(free))
		}
	}

	return nil
}

func (p *pass) syncMedia(ctx context.Context) error {
	deckIDs, err := p.handle.Collection().DeckIDs(ctx)
	if err != nil {
		return err
	}

	media := NewMediaSync(MediaConfig{
		Store:     p.cfg.Store,
		Layout:    p.cfg.Layout,
		Reporter:  p.cfg.Reporter,
		Confirmer: p.cfg.Confirmer,
		Metrics:   p.cfg.Metrics,
		Logger:    p.logger,
	})
	media.nowFunc = p.nowFunc

	p.report.Media, err = media.Run(ctx, deckIDs)

	return err
}
