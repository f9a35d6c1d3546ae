package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tonimelisma/flashsync/internal/mediadb"
	"github.com/tonimelisma/flashsync/internal/metrics"
	"github.com/tonimelisma/flashsync/internal/remote"
	"github.com/tonimelisma/flashsync/internal/sqlitedb"
	"github.com/tonimelisma/flashsync/internal/synclog"
)

// Temp file names used by a media pass, under <temp>/media.
const (
	mediaTempFolder   = "media"
	remoteIndexCopy   = "remote-media-index.db"
	remoteIndexUpload = "media-index-upload.db"
)

// MediaConfig wires a MediaSync.
type MediaConfig struct {
	Store     remote.Store
	Layout    Layout
	Reporter  Reporter
	Confirmer Confirmer
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// MediaReport describes what a media pass did.
type MediaReport struct {
	// FirstSync is set when the remote had no media index.
	FirstSync bool
	// ForcedUpload is set when a corrupt remote index was replaced with the
	// user's consent.
	ForcedUpload bool

	Downloaded    int
	Uploaded      int
	DeletedLocal  int
	DeletedRemote int
	// Resumed counts records skipped because the sync log showed them done.
	Resumed int

	Conflicts []Conflict
	// OutOfSync lists paths left out of this pass: remote records for decks
	// that no longer exist locally, and local records whose deck or file is
	// gone.
	OutOfSync []string
	// SkippedFiles lists paths whose transfer failed. They are retried on
	// the next pass.
	SkippedFiles []string

	IndexUploaded bool
}

// Complete reports whether every file transfer succeeded.
func (r *MediaReport) Complete() bool {
	return len(r.SkippedFiles) == 0
}

// MediaSync reconciles per-deck media files between the local media folder
// and the remote store, driven by the two media indexes.
type MediaSync struct {
	cfg    MediaConfig
	logger *slog.Logger

	nowFunc func() time.Time
}

// NewMediaSync creates a MediaSync. Nil Reporter, Confirmer and Logger get
// no-op defaults; a nil Confirmer declines forced uploads.
func NewMediaSync(cfg MediaConfig) *MediaSync {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Reporter == nil {
		cfg.Reporter = nopReporter{}
	}

	if cfg.Confirmer == nil {
		cfg.Confirmer = declineConfirmer{}
	}

	return &MediaSync{
		cfg:     cfg,
		logger:  cfg.Logger,
		nowFunc: time.Now,
	}
}

// mediaPass is the state of one Run.
type mediaPass struct {
	*MediaSync

	tempDir   string
	syncStart int64
	localLast int64
	deckIDs   map[int64]bool

	log       *synclog.Log
	local     *mediadb.DB
	remoteIdx *mediadb.DB

	report *MediaReport

	outOfSyncRemote []string
	applied         []mediadb.Record
	skippedLocal    []mediadb.Record

	// finished is set once the local index has been replaced.
	finished bool
}

// Run performs one media pass. deckIDs is the set of decks in the local
// collection; media of other decks is left out of sync.
//
// Per-file transfer failures do not fail the pass: they are listed in
// MediaReport.SkippedFiles, the sync log is kept so finished transfers are
// not repeated, and the local sync mark is not advanced.
func (m *MediaSync) Run(ctx context.Context, deckIDs map[int64]bool) (*MediaReport, error) {
	p := &mediaPass{
		MediaSync: m,
		tempDir:   filepath.Join(m.cfg.Layout.TempDir, mediaTempFolder),
		syncStart: m.nowFunc().Unix(),
		deckIDs:   deckIDs,
		report:    &MediaReport{},
	}

	defer p.close()

	if err := p.open(ctx); err != nil {
		return p.report, err
	}

	if err := p.run(ctx); err != nil {
		return p.report, err
	}

	m.logger.Info("media sync complete",
		slog.Int("downloaded", p.report.Downloaded),
		slog.Int("uploaded", p.report.Uploaded),
		slog.Int("deleted_local", p.report.DeletedLocal),
		slog.Int("deleted_remote", p.report.DeletedRemote),
		slog.Int("resumed", p.report.Resumed),
		slog.Int("skipped", len(p.report.SkippedFiles)),
	)

	return p.report, nil
}

func (p *mediaPass) open(ctx context.Context) error {
	if err := os.RemoveAll(p.tempDir); err != nil {
		return fmt.Errorf("sync: clearing media temp folder: %w", err)
	}

	if err := os.MkdirAll(p.tempDir, 0o700); err != nil {
		return fmt.Errorf("sync: creating media temp folder: %w", err)
	}

	log, err := synclog.Open(ctx, p.cfg.Layout.SyncLogPath, p.logger)
	if err != nil {
		return fmt.Errorf("sync: opening sync log: %w", err)
	}

	p.log = log

	if n := log.Len(); n > 0 {
		p.logger.Info("resuming interrupted media sync", slog.Int("logged", n))
	}

	local, err := mediadb.Open(ctx, p.cfg.Layout.MediaDBPath, p.logger)
	if err != nil {
		return fmt.Errorf("sync: opening local media index: %w", err)
	}

	p.local = local

	p.localLast, err = local.LastSync(ctx)

	return err
}

// close releases whatever is still open. The sync log is deleted only when
// the pass completed without skipped files.
func (p *mediaPass) close() {
	if p.remoteIdx != nil {
		p.remoteIdx.Close()
	}

	if p.local != nil {
		p.local.Close()
	}

	if p.log != nil {
		if err := p.log.Close(); err != nil {
			p.logger.Warn("sync log close failed", slog.String("error", err.Error()))
		}
	}

	if p.finished && p.report.Complete() {
		if err := synclog.Remove(p.cfg.Layout.SyncLogPath); err != nil {
			p.logger.Warn("removing sync log failed", slog.String("error", err.Error()))
		}
	}

	if err := os.RemoveAll(p.tempDir); err != nil {
		p.logger.Warn("removing media temp folder failed", slog.String("error", err.Error()))
	}
}

func (p *mediaPass) run(ctx context.Context) error {
	first, err := p.fetchRemoteIndex(ctx)
	if err != nil {
		return err
	}

	var remoteChanges, localChanges []mediadb.Record

	if first {
		localChanges, err = p.allLocalAdds(ctx)
		if err != nil {
			return err
		}
	} else {
		remoteChanges, localChanges, err = p.changeSets(ctx)
		if err != nil {
			return err
		}
	}

	hadLocalChanges := len(localChanges) > 0

	remoteChanges, localChanges, p.report.Conflicts = ResolveConflicts(remoteChanges, localChanges)
	for _, c := range p.report.Conflicts {
		p.logger.Debug("media conflict",
			slog.String("path", c.RelativePath),
			slog.Bool("remote_added", c.Remote.IsAdded),
			slog.Bool("local_added", c.Local.IsAdded),
			slog.Bool("spurious", c.Spurious()),
		)
	}

	if err := p.applyRemote(ctx, remoteChanges); err != nil {
		return err
	}

	if err := p.pruneDeckFolders(); err != nil {
		return err
	}

	if err := p.applyLocal(ctx, localChanges); err != nil {
		return err
	}

	needUpload := first || hadLocalChanges || len(p.outOfSyncRemote) > 0

	if err := p.patchRemoteIndex(ctx, needUpload); err != nil {
		return err
	}

	return p.replaceLocalIndex(ctx)
}

// fetchRemoteIndex downloads and opens the remote index. It reports true
// when the pass must upload everything: the remote has no index, or its
// index is corrupt and the user agreed to replace it.
func (p *mediaPass) fetchRemoteIndex(ctx context.Context) (bool, error) {
	copyPath := filepath.Join(p.tempDir, remoteIndexCopy)

	item, err := p.cfg.Store.TryGetItem(ctx, RemoteMediaIndex, "")
	if err != nil {
		return false, fmt.Errorf("sync: looking up remote media index: %w", err)
	}

	if item == nil {
		p.logger.Info("no remote media index, uploading all local media")
		p.report.FirstSync = true

		return true, p.openEmptyRemoteIndex(ctx, copyPath)
	}

	p.cfg.Reporter.SetStatus("Downloading media index")

	if err := p.cfg.Store.Download(ctx, RemoteMediaIndex, copyPath); err != nil {
		return false, fmt.Errorf("sync: downloading remote media index: %w", err)
	}

	idx, err := mediadb.Open(ctx, copyPath, p.logger)
	if err == nil {
		p.remoteIdx = idx
		return false, nil
	}

	if !errors.Is(err, mediadb.ErrCorrupt) {
		return false, fmt.Errorf("sync: opening remote media index: %w", err)
	}

	p.logger.Warn("remote media index is corrupt", slog.String("error", err.Error()))

	if !p.cfg.Confirmer.ConfirmForceMediaUpload(ctx) {
		return false, fmt.Errorf("%w: %w", ErrCorruptRemoteIndex, err)
	}

	p.logger.Info("replacing corrupt remote media index")
	p.report.ForcedUpload = true

	return true, p.openEmptyRemoteIndex(ctx, copyPath)
}

func (p *mediaPass) openEmptyRemoteIndex(ctx context.Context, path string) error {
	if err := sqlitedb.Remove(path); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	idx, err := mediadb.Open(ctx, path, p.logger)
	if err != nil {
		return fmt.Errorf("sync: creating media index: %w", err)
	}

	p.remoteIdx = idx

	return nil
}

// allLocalAdds returns every local record that names a present file.
func (p *mediaPass) allLocalAdds(ctx context.Context) ([]mediadb.Record, error) {
	all, err := p.local.Records(ctx)
	if err != nil {
		return nil, err
	}

	adds := make([]mediadb.Record, 0, len(all))

	for _, rec := range all {
		if rec.IsAdded {
			adds = append(adds, rec)
		}
	}

	return adds, nil
}

// changeSets returns the records each side changed after the local sync
// mark. Local changes are limited to dirty rows: clean rows came from the
// remote index and are not this device's edits.
func (p *mediaPass) changeSets(ctx context.Context) (remoteChanges, localChanges []mediadb.Record, err error) {
	remoteLast, err := p.remoteIdx.LastSync(ctx)
	if err != nil {
		return nil, nil, err
	}

	primary := "local"
	if remoteLast > p.localLast {
		primary = "remote"
	}

	p.logger.Info("comparing media indexes",
		slog.Int64("local_last_sync", p.localLast),
		slog.Int64("remote_last_sync", remoteLast),
		slog.String("newer", primary),
	)

	remoteChanges, err = p.remoteIdx.ModifiedSince(ctx, p.localLast)
	if err != nil {
		return nil, nil, err
	}

	modified, err := p.local.ModifiedSince(ctx, p.localLast)
	if err != nil {
		return nil, nil, err
	}

	for _, rec := range modified {
		if rec.Dirty {
			localChanges = append(localChanges, rec)
		}
	}

	return remoteChanges, localChanges, nil
}

func (p *mediaPass) applyRemote(ctx context.Context, changes []mediadb.Record) error {
	if len(changes) == 0 {
		return nil
	}

	p.cfg.Reporter.SetStatus("Downloading media")

	for i, rec := range changes {
		p.cfg.Reporter.SetProgress(i+1, len(changes))

		deckID, name, err := mediadb.SplitRelativePath(rec.RelativePath)
		if err != nil || !p.deckIDs[deckID] {
			p.logger.Debug("remote media out of sync", slog.String("path", rec.RelativePath))
			p.outOfSyncRemote = append(p.outOfSyncRemote, rec.RelativePath)
			p.report.OutOfSync = append(p.report.OutOfSync, rec.RelativePath)

			continue
		}

		if p.log.Done(rec) {
			p.report.Resumed++
			continue
		}

		localPath := p.cfg.Layout.MediaFile(deckID, name)

		if rec.IsAdded {
			err = p.cfg.Store.Download(ctx, remoteMediaPath(rec.RelativePath), localPath)
		} else {
			err = removeIfExists(localPath)
		}

		if err != nil {
			if fatalTransferError(ctx, err) {
				return fmt.Errorf("sync: applying remote change to %s: %w", rec.RelativePath, err)
			}

			p.skip(rec.RelativePath, err)

			continue
		}

		p.log.Record(rec)

		if rec.IsAdded {
			p.report.Downloaded++
			p.cfg.Metrics.FileTransferred("download")
		} else {
			p.report.DeletedLocal++
			p.cfg.Metrics.FileTransferred("delete_local")
		}
	}

	return nil
}

// pruneDeckFolders removes local media folders of decks that no longer
// exist. Entries that are not deck folders are left alone.
func (p *mediaPass) pruneDeckFolders() error {
	entries, err := os.ReadDir(p.cfg.Layout.MediaDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("sync: reading media folder: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		deckID, parseErr := strconv.ParseInt(e.Name(), 10, 64)
		if parseErr != nil || p.deckIDs[deckID] {
			continue
		}

		dir := filepath.Join(p.cfg.Layout.MediaDir, e.Name())
		p.logger.Info("removing media of deleted deck", slog.Int64("deck_id", deckID))

		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("sync: removing %s: %w", dir, err)
		}
	}

	return nil
}

func (p *mediaPass) applyLocal(ctx context.Context, changes []mediadb.Record) error {
	if len(changes) == 0 {
		return nil
	}

	p.cfg.Reporter.SetStatus("Uploading media")

	for i, rec := range changes {
		p.cfg.Reporter.SetProgress(i+1, len(changes))

		deckID, name, err := mediadb.SplitRelativePath(rec.RelativePath)
		if err != nil || !p.deckIDs[deckID] {
			p.report.OutOfSync = append(p.report.OutOfSync, rec.RelativePath)
			continue
		}

		localPath := p.cfg.Layout.MediaFile(deckID, name)

		if rec.IsAdded {
			if _, statErr := os.Stat(localPath); statErr != nil {
				p.logger.Debug("local media file missing", slog.String("path", rec.RelativePath))
				p.report.OutOfSync = append(p.report.OutOfSync, rec.RelativePath)

				continue
			}
		}

		if p.log.Done(rec) {
			p.report.Resumed++
			p.applied = append(p.applied, rec)

			continue
		}

		remotePath := remoteMediaPath(rec.RelativePath)

		if rec.IsAdded {
			err = p.cfg.Store.Upload(ctx, localPath, remotePath)
		} else {
			err = p.cfg.Store.Delete(ctx, remotePath)
		}

		if err != nil {
			if fatalTransferError(ctx, err) {
				return fmt.Errorf("sync: applying local change to %s: %w", rec.RelativePath, err)
			}

			p.skip(rec.RelativePath, err)
			p.skippedLocal = append(p.skippedLocal, rec)

			continue
		}

		p.log.Record(rec)
		p.applied = append(p.applied, rec)

		if rec.IsAdded {
			p.report.Uploaded++
			p.cfg.Metrics.FileTransferred("upload")
		} else {
			p.report.DeletedRemote++
			p.cfg.Metrics.FileTransferred("delete_remote")
		}
	}

	return nil
}

// patchRemoteIndex brings the downloaded remote index up to date with this
// pass and, when needUpload is set, publishes it.
func (p *mediaPass) patchRemoteIndex(ctx context.Context, needUpload bool) error {
	for _, relPath := range p.outOfSyncRemote {
		if err := p.remoteIdx.Delete(ctx, relPath); err != nil {
			return err
		}
	}

	for _, rec := range p.applied {
		if !rec.IsAdded {
			// A removal of a file the remote never indexed leaves no row.
			existing, err := p.remoteIdx.Get(ctx, rec.RelativePath)
			if err != nil {
				return err
			}

			if existing == nil {
				continue
			}
		}

		rec.Dirty = false
		if err := p.remoteIdx.Upsert(ctx, rec); err != nil {
			return err
		}
	}

	if !needUpload {
		return nil
	}

	if err := p.remoteIdx.SetLastSync(ctx, p.syncStart); err != nil {
		return err
	}

	if err := p.remoteIdx.MarkAllClean(ctx); err != nil {
		return err
	}

	snapshot := filepath.Join(p.tempDir, remoteIndexUpload)
	if err := p.remoteIdx.SnapshotTo(ctx, snapshot); err != nil {
		return err
	}

	p.cfg.Reporter.SetStatus("Uploading media index")

	if err := p.cfg.Store.Upload(ctx, snapshot, RemoteMediaIndex); err != nil {
		return fmt.Errorf("sync: uploading media index: %w", err)
	}

	p.report.IndexUploaded = true

	return nil
}

// replaceLocalIndex makes the patched remote copy the new local index.
// Local changes that failed to upload are carried over dirty, and the sync
// mark only advances when nothing was skipped, so the next pass retries.
func (p *mediaPass) replaceLocalIndex(ctx context.Context) error {
	for _, rec := range p.skippedLocal {
		rec.Dirty = true
		if err := p.remoteIdx.Upsert(ctx, rec); err != nil {
			return err
		}
	}

	mark := p.localLast
	if p.report.Complete() {
		mark = p.syncStart
	}

	if err := p.remoteIdx.SetLastSync(ctx, mark); err != nil {
		return err
	}

	copyPath := p.remoteIdx.Path()

	if err := p.remoteIdx.Close(); err != nil {
		return fmt.Errorf("sync: closing media index copy: %w", err)
	}

	p.remoteIdx = nil

	if err := p.local.Close(); err != nil {
		return fmt.Errorf("sync: closing local media index: %w", err)
	}

	p.local = nil

	if err := sqlitedb.ReplaceFile(copyPath, p.cfg.Layout.MediaDBPath); err != nil {
		return fmt.Errorf("sync: replacing local media index: %w", err)
	}

	p.finished = true

	p.logger.Debug("local media index replaced", slog.Int64("last_sync", mark))

	return nil
}

func (p *mediaPass) skip(relPath string, err error) {
	p.logger.Warn("media transfer failed, skipping",
		slog.String("path", relPath),
		slog.String("error", err.Error()),
	)

	p.report.SkippedFiles = append(p.report.SkippedFiles, relPath)
	p.cfg.Metrics.FileSkipped()
}

// fatalTransferError reports whether a per-file failure must end the pass
// instead of being skipped: every later transfer would fail the same way.
func fatalTransferError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}

	switch remote.Classify(err) {
	case remote.CategoryAuthentication, remote.CategoryQuotaExceeded, remote.CategoryCanceled:
		return true
	default:
		return false
	}
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sync: removing %s: %w", path, err)
	}

	return nil
}
