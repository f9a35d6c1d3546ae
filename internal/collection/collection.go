// Package collection owns the local collection database. Only the parts the
// sync engine needs are modeled: the deck list (media and deck images are
// keyed by deck id) and whole-file snapshot and replacement.
//
// Access goes through a Manager that hands out one Handle at a time, so the
// window in which sync swaps the database file cannot overlap any other use.
package collection

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/tonimelisma/flashsync/internal/sqlitedb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCorrupt is returned when the collection file fails its integrity check.
var ErrCorrupt = sqlitedb.ErrCorrupt

// FileName is the collection's name locally and remotely.
const FileName = "collection.db"

// Deck is one deck row.
type Deck struct {
	ID    int64
	Name  string
	MTime int64
}

// Collection is an open collection database.
type Collection struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens or creates the collection at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Collection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("collection: migration sub-filesystem: %w", err)
	}

	db, err := sqlitedb.Open(ctx, path, sub, logger)
	if err != nil {
		return nil, fmt.Errorf("collection: %w", err)
	}

	return &Collection{db: db, path: path, logger: logger}, nil
}

// Validate opens the file at path and checks its integrity without keeping
// it open. Used on a downloaded copy before it replaces the live file.
func Validate(ctx context.Context, path string, logger *slog.Logger) error {
	c, err := Open(ctx, path, logger)
	if err != nil {
		return err
	}

	return c.Close()
}

// Close closes the database.
func (c *Collection) Close() error {
	return c.db.Close()
}

// Decks returns all decks ordered by name.
func (c *Collection) Decks(ctx context.Context) ([]Deck, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, mtime FROM decks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("collection: listing decks: %w", err)
	}
	defer rows.Close()

	var decks []Deck

	for rows.Next() {
		var d Deck
		if err := rows.Scan(&d.ID, &d.Name, &d.MTime); err != nil {
			return nil, fmt.Errorf("collection: scanning deck: %w", err)
		}

		decks = append(decks, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collection: iterating decks: %w", err)
	}

	return decks, nil
}

// DeckIDs returns the set of existing deck ids.
func (c *Collection) DeckIDs(ctx context.Context) (map[int64]bool, error) {
	decks, err := c.Decks(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[int64]bool, len(decks))
	for _, d := range decks {
		ids[d.ID] = true
	}

	return ids, nil
}

// AddDeck inserts a deck. Ids are creation times in milliseconds, bumped
// past any existing id so two decks created in the same millisecond differ.
func (c *Collection) AddDeck(ctx context.Context, name string, nowMillis int64) (int64, error) {
	var maxID sql.NullInt64
	if err := c.db.QueryRowContext(ctx, `SELECT MAX(id) FROM decks`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("collection: reading max deck id: %w", err)
	}

	id := nowMillis
	if maxID.Valid && maxID.Int64 >= id {
		id = maxID.Int64 + 1
	}

	_, err := c.db.ExecContext(ctx, `INSERT INTO decks (id, name, mtime) VALUES (?, ?, ?)`, id, name, nowMillis/1000)
	if err != nil {
		return 0, fmt.Errorf("collection: adding deck %q: %w", name, err)
	}

	c.logger.Info("deck added", slog.Int64("deck_id", id), slog.String("name", name))

	return id, nil
}

// SnapshotTo writes a consistent single-file copy of the collection to dest.
func (c *Collection) SnapshotTo(ctx context.Context, dest string) error {
	return sqlitedb.SnapshotTo(ctx, c.db, dest)
}

// Check runs the integrity check on the open collection.
func (c *Collection) Check(ctx context.Context) error {
	return sqlitedb.Check(ctx, c.db)
}
