package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tonimelisma/flashsync/internal/sqlitedb"
)

// Manager serializes access to the collection file: at most one Handle is
// checked out at a time.
type Manager struct {
	path   string
	logger *slog.Logger
	slot   chan struct{}
}

// NewManager returns a Manager for the collection at path.
func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	slot := make(chan struct{}, 1)
	slot <- struct{}{}

	return &Manager{path: path, logger: logger, slot: slot}
}

// Path returns the collection file path.
func (m *Manager) Path() string {
	return m.path
}

// Checkout waits for exclusive access and opens the collection.
func (m *Manager) Checkout(ctx context.Context) (*Handle, error) {
	select {
	case <-m.slot:
	case <-ctx.Done():
		return nil, fmt.Errorf("collection: waiting for checkout: %w", ctx.Err())
	}

	coll, err := Open(ctx, m.path, m.logger)
	if err != nil {
		m.slot <- struct{}{}
		return nil, err
	}

	return &Handle{m: m, coll: coll}, nil
}

// Handle is exclusive access to the collection. Release it when done.
type Handle struct {
	m    *Manager
	coll *Collection
	once sync.Once
}

// Collection returns the open collection. It is nil after a failed Replace.
func (h *Handle) Collection() *Collection {
	return h.coll
}

// Replace closes the collection, moves src over the collection file and
// reopens it. If reopening fails the handle holds no collection and the
// error is returned; Release is still required.
func (h *Handle) Replace(ctx context.Context, src string) error {
	if h.coll != nil {
		if err := h.coll.Close(); err != nil {
			return fmt.Errorf("collection: closing before replace: %w", err)
		}

		h.coll = nil
	}

	if err := sqlitedb.ReplaceFile(src, h.m.path); err != nil {
		return fmt.Errorf("collection: %w", err)
	}

	coll, err := Open(ctx, h.m.path, h.m.logger)
	if err != nil {
		return fmt.Errorf("collection: reopening after replace: %w", err)
	}

	h.coll = coll
	h.m.logger.Info("collection replaced", slog.String("path", h.m.path))

	return nil
}

// Release closes the collection and returns the slot. Safe to call twice.
func (h *Handle) Release() error {
	var err error

	h.once.Do(func() {
		if h.coll != nil {
			err = h.coll.Close()
			h.coll = nil
		}

		h.m.slot <- struct{}{}
	})

	return err
}
