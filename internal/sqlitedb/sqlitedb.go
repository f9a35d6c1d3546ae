// Package sqlitedb opens the small SQLite databases flashsync keeps (media
// index, sync log, collection) with one set of pragmas, an integrity check
// and goose migrations.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	"golang.org/x/sys/unix"
	// Pure-Go SQLite driver (no CGO), registers as "sqlite".
	_ "modernc.org/sqlite"
)

// ErrCorrupt is returned when a file is not a readable SQLite database or
// fails its integrity check.
var ErrCorrupt = errors.New("sqlitedb: database is corrupt")

// Open opens (creating if needed) the database at path, verifies it with
// PRAGMA quick_check and applies the migrations found at the root of
// migrations. Only one connection is used: every database here has a single
// writer.
func Open(ctx context.Context, path string, migrations fs.FS, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: opening %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := Check(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitedb: %s: %w", path, err)
	}

	if err := migrate(ctx, db, migrations, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitedb: %s: %w", path, err)
	}

	return db, nil
}

// Check runs PRAGMA quick_check. Any failure, including "file is not a
// database", is reported as ErrCorrupt.
func Check(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if result != "ok" {
		return fmt.Errorf("%w: quick_check: %s", ErrCorrupt, result)
	}

	return nil
}

// SnapshotTo writes a consistent single-file copy of db to dest with VACUUM
// INTO. An existing dest is replaced.
func SnapshotTo(ctx context.Context, db *sql.DB, dest string) error {
	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sqlitedb: removing old snapshot %s: %w", dest, err)
	}

	// VACUUM INTO takes a string literal, not a bind parameter.
	quoted := "'" + strings.ReplaceAll(dest, "'", "''") + "'"
	if _, err := db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return fmt.Errorf("sqlitedb: snapshot to %s: %w", dest, err)
	}

	return nil
}

// renameFile is os.Rename; tests swap it to simulate a cross-device move.
var renameFile = os.Rename

// ReplaceFile moves the database file src over dest, dropping dest's WAL
// side files so no stale journal is replayed onto the new content. Both
// databases must be closed. src may live on another filesystem (temp_dir on
// a separate mount); the copy is then staged beside dest so the final swap
// is still a single rename.
func ReplaceFile(src, dest string) error {
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dest + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("sqlitedb: removing %s%s: %w", dest, suffix, err)
		}
	}

	err := renameFile(src, dest)
	if errors.Is(err, unix.EXDEV) {
		err = copyAcross(src, dest)
	}

	if err != nil {
		return fmt.Errorf("sqlitedb: replacing %s: %w", dest, err)
	}

	return nil
}

// copyAcross copies src into a .partial file in dest's folder, fsyncs it,
// renames it over dest and removes src.
func copyAcross(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.partial")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("copying across filesystems: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Remove(src)
}

// Remove deletes a database file and its side files. Absence is not an error.
func Remove(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("sqlitedb: removing %s: %w", p, err)
		}
	}

	return nil
}

// migrate applies pending migrations with the goose v3 Provider API (no
// global state, context-aware).
func migrate(ctx context.Context, db *sql.DB, migrations fs.FS, logger *slog.Logger) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
