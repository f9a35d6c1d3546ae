// Package mediadb is the media index: one row per media file, keyed by
// "<deckId>/<fileName>", recording whether the file is present (is_added)
// or deleted (a tombstone), when it last changed and whether the change has
// reached the remote copy of the index yet (dirty). A singleton meta row
// stamps when the index was last reconciled.
//
// The same schema serves the local index and the remote snapshot that the
// media synchronizer downloads and patches.
package mediadb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/flashsync/internal/sqlitedb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCorrupt is returned by Open when the file is not a usable index.
var ErrCorrupt = sqlitedb.ErrCorrupt

const (
	sqlSelectAll = `SELECT relative_path, is_added, modified_time, dirty FROM media
		ORDER BY relative_path`

	sqlSelectSince = `SELECT relative_path, is_added, modified_time, dirty FROM media
		WHERE modified_time > ? ORDER BY relative_path`

	sqlSelectOne = `SELECT relative_path, is_added, modified_time, dirty FROM media
		WHERE relative_path = ?`

	sqlUpsert = `INSERT INTO media (relative_path, is_added, modified_time, dirty)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(relative_path) DO UPDATE SET
		 is_added = excluded.is_added,
		 modified_time = excluded.modified_time,
		 dirty = excluded.dirty`

	sqlDelete       = `DELETE FROM media WHERE relative_path = ?`
	sqlLastSync     = `SELECT last_unix_time_sync FROM meta WHERE id = 1`
	sqlSetLastSync  = `UPDATE meta SET last_unix_time_sync = ? WHERE id = 1`
	sqlMarkAllClean = `UPDATE media SET dirty = 0 WHERE dirty = 1`
	sqlDirtyCount   = `SELECT COUNT(*) FROM media WHERE dirty = 1`
)

// Record is one media index row.
type Record struct {
	RelativePath string
	IsAdded      bool
	ModifiedTime int64
	Dirty        bool
}

// DB is an open media index.
type DB struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens or creates the index at path. A file that is not a readable
// index fails with ErrCorrupt.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("mediadb: migration sub-filesystem: %w", err)
	}

	db, err := sqlitedb.Open(ctx, path, sub, logger)
	if err != nil {
		return nil, fmt.Errorf("mediadb: %w", err)
	}

	return &DB{db: db, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Records returns every row, tombstones included, ordered by path.
func (d *DB) Records(ctx context.Context) ([]Record, error) {
	return d.query(ctx, sqlSelectAll)
}

// ModifiedSince returns rows changed strictly after since. A row whose
// modified time equals since is not a change.
func (d *DB) ModifiedSince(ctx context.Context, since int64) ([]Record, error) {
	return d.query(ctx, sqlSelectSince, since)
}

// Get returns the row for relPath, or nil when there is none.
func (d *DB) Get(ctx context.Context, relPath string) (*Record, error) {
	rec, err := scanRecord(d.db.QueryRowContext(ctx, sqlSelectOne, Normalize(relPath)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("mediadb: reading %s: %w", relPath, err)
	}

	return &rec, nil
}

// Upsert inserts or replaces a row as given, including its dirty flag.
func (d *DB) Upsert(ctx context.Context, rec Record) error {
	_, err := d.db.ExecContext(ctx, sqlUpsert,
		Normalize(rec.RelativePath), boolToInt(rec.IsAdded), rec.ModifiedTime, boolToInt(rec.Dirty))
	if err != nil {
		return fmt.Errorf("mediadb: upserting %s: %w", rec.RelativePath, err)
	}

	return nil
}

// RecordChange records a local add or delete made at now, marking the row
// dirty until the next successful index upload.
func (d *DB) RecordChange(ctx context.Context, relPath string, isAdded bool, now int64) error {
	d.logger.Debug("recording media change",
		slog.String("path", relPath),
		slog.Bool("is_added", isAdded),
		slog.Int64("modified_time", now),
	)

	return d.Upsert(ctx, Record{RelativePath: relPath, IsAdded: isAdded, ModifiedTime: now, Dirty: true})
}

// Delete removes the row for relPath entirely. Used only when pruning
// records for decks that no longer exist; ordinary deletions are tombstones.
func (d *DB) Delete(ctx context.Context, relPath string) error {
	if _, err := d.db.ExecContext(ctx, sqlDelete, Normalize(relPath)); err != nil {
		return fmt.Errorf("mediadb: deleting %s: %w", relPath, err)
	}

	return nil
}

// LastSync returns the reconciliation stamp.
func (d *DB) LastSync(ctx context.Context) (int64, error) {
	var ts int64
	if err := d.db.QueryRowContext(ctx, sqlLastSync).Scan(&ts); err != nil {
		return 0, fmt.Errorf("mediadb: reading last sync: %w", err)
	}

	return ts, nil
}

// SetLastSync updates the reconciliation stamp.
func (d *DB) SetLastSync(ctx context.Context, ts int64) error {
	if _, err := d.db.ExecContext(ctx, sqlSetLastSync, ts); err != nil {
		return fmt.Errorf("mediadb: writing last sync: %w", err)
	}

	return nil
}

// MarkAllClean clears every dirty flag.
func (d *DB) MarkAllClean(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, sqlMarkAllClean); err != nil {
		return fmt.Errorf("mediadb: clearing dirty flags: %w", err)
	}

	return nil
}

// DirtyCount returns how many rows have not reached the remote index.
func (d *DB) DirtyCount(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, sqlDirtyCount).Scan(&n); err != nil {
		return 0, fmt.Errorf("mediadb: counting dirty rows: %w", err)
	}

	return n, nil
}

// SnapshotTo writes a consistent single-file copy of the index to dest.
func (d *DB) SnapshotTo(ctx context.Context, dest string) error {
	return sqlitedb.SnapshotTo(ctx, d.db, dest)
}

func (d *DB) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mediadb: querying records: %w", err)
	}
	defer rows.Close()

	var out []Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("mediadb: scanning record: %w", err)
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mediadb: iterating records: %w", err)
	}

	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec            Record
		isAdded, dirty int
	)

	if err := s.Scan(&rec.RelativePath, &isAdded, &rec.ModifiedTime, &dirty); err != nil {
		return Record{}, err
	}

	rec.IsAdded = isAdded != 0
	rec.Dirty = dirty != 0

	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

// Normalize returns relPath in NFC with forward slashes, so names typed on
// different platforms map to one row.
func Normalize(relPath string) string {
	return norm.NFC.String(strings.ReplaceAll(relPath, "\\", "/"))
}

// RelativePath builds the "<deckId>/<fileName>" key.
func RelativePath(deckID int64, fileName string) string {
	return Normalize(strconv.FormatInt(deckID, 10) + "/" + fileName)
}

// SplitRelativePath parses a "<deckId>/<fileName>" key.
func SplitRelativePath(relPath string) (deckID int64, fileName string, err error) {
	deckPart, name, ok := strings.Cut(relPath, "/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return 0, "", fmt.Errorf("mediadb: malformed media path %q", relPath)
	}

	deckID, err = strconv.ParseInt(deckPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("mediadb: malformed deck id in %q: %w", relPath, err)
	}

	return deckID, name, nil
}
