// Package synclog records which media files a sync attempt has already
// transferred, so an interrupted media sync can resume without repeating
// work. The log is an optimization: correctness comes from re-reading the
// media indexes on the next run, so a crash that loses the last few writes
// only costs a few repeated transfers.
package synclog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/flashsync/internal/mediadb"
	"github.com/tonimelisma/flashsync/internal/sqlitedb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// queueSize bounds the number of pending writes; Record blocks beyond it.
const queueSize = 64

const (
	sqlLoad   = `SELECT relative_path, is_added, modified_time FROM sync_log`
	sqlUpsert = `INSERT INTO sync_log (relative_path, is_added, modified_time)
		VALUES (?, ?, ?)
		ON CONFLICT(relative_path) DO UPDATE SET
		 is_added = excluded.is_added,
		 modified_time = excluded.modified_time`
)

type entry struct {
	isAdded      bool
	modifiedTime int64
}

// Log is an open sync log. Writes go through a single background writer;
// reads are served from memory, which is always at least as new as disk.
type Log struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry

	queue chan mediadb.Record
	group *errgroup.Group
}

// Open opens the log at path, creating it when absent, and starts the
// writer. Close must be called to flush pending writes.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("synclog: migration sub-filesystem: %w", err)
	}

	db, err := sqlitedb.Open(ctx, path, sub, logger)
	if err != nil {
		return nil, fmt.Errorf("synclog: %w", err)
	}

	l := &Log{
		db:      db,
		path:    path,
		logger:  logger,
		entries: make(map[string]entry),
		queue:   make(chan mediadb.Record, queueSize),
	}

	if err := l.load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if len(l.entries) > 0 {
		logger.Info("resuming interrupted media sync",
			slog.String("path", path),
			slog.Int("already_transferred", len(l.entries)),
		)
	}

	l.group = new(errgroup.Group)
	l.group.Go(l.writer)

	return l, nil
}

func (l *Log) load(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx, sqlLoad)
	if err != nil {
		return fmt.Errorf("synclog: loading: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p       string
			isAdded int
			e       entry
		)

		if err := rows.Scan(&p, &isAdded, &e.modifiedTime); err != nil {
			return fmt.Errorf("synclog: scanning: %w", err)
		}

		e.isAdded = isAdded != 0
		l.entries[p] = e
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("synclog: iterating: %w", err)
	}

	return nil
}

// Done reports whether rec was already transferred: the logged entry must
// match both IsAdded and ModifiedTime exactly.
func (l *Log) Done(rec mediadb.Record) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[mediadb.Normalize(rec.RelativePath)]

	return ok && e.isAdded == rec.IsAdded && e.modifiedTime == rec.ModifiedTime
}

// Len returns the number of logged transfers.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}

// Record marks rec as transferred. Call it only after the transfer
// succeeded. The disk write happens in the background.
func (l *Log) Record(rec mediadb.Record) {
	rec.RelativePath = mediadb.Normalize(rec.RelativePath)

	l.mu.Lock()
	l.entries[rec.RelativePath] = entry{isAdded: rec.IsAdded, modifiedTime: rec.ModifiedTime}
	l.mu.Unlock()

	l.queue <- rec
}

// writer is the single consumer of the queue. A failed write is logged and
// remembered; later writes still run.
func (l *Log) writer() error {
	var firstErr error

	for rec := range l.queue {
		_, err := l.db.ExecContext(context.Background(), sqlUpsert, rec.RelativePath, boolToInt(rec.IsAdded), rec.ModifiedTime)
		if err != nil {
			l.logger.Warn("sync log write failed",
				slog.String("path", rec.RelativePath),
				slog.String("error", err.Error()),
			)

			if firstErr == nil {
				firstErr = fmt.Errorf("synclog: writing %s: %w", rec.RelativePath, err)
			}
		}
	}

	return firstErr
}

// Close flushes pending writes and closes the database. It returns the
// first write error, if any.
func (l *Log) Close() error {
	close(l.queue)

	writeErr := l.group.Wait()
	closeErr := l.db.Close()

	return errors.Join(writeErr, closeErr)
}

// Remove deletes the log file at path after a fully successful sync.
func Remove(path string) error {
	if err := sqlitedb.Remove(path); err != nil {
		return fmt.Errorf("synclog: %w", err)
	}

	return nil
}

// Exists reports whether a log file is present, which means the previous
// media sync did not finish.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
