// Package datalock serializes flashsync processes sharing a data directory.
// A sync pass holds the lock from its first stage through cleanup, and every
// command that edits the collection, the media index or the media folder
// takes it around its change, so neither sees the other half-done.
package datalock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// FileName is the lock file inside the data directory. It is never removed:
// unlinking a flock'd file lets a waiter lock an orphaned inode.
const FileName = "flashsync.lock"

const defaultPollInterval = 100 * time.Millisecond

// Locker hands out the data directory lock.
type Locker struct {
	path   string
	logger *slog.Logger

	// OnWait runs once per Lock call that finds the lock taken.
	OnWait func()

	pollInterval time.Duration
}

// New returns a Locker for dataDir.
func New(dataDir string, logger *slog.Logger) *Locker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Locker{
		path:         filepath.Join(dataDir, FileName),
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// Lock blocks until the lock is held or ctx ends, and returns the function
// that releases it.
func (l *Locker) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return nil, fmt.Errorf("datalock: creating data directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("datalock: opening %s: %w", l.path, err)
	}

	waited := false
	start := time.Now()

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}

		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, fmt.Errorf("datalock: locking %s: %w", l.path, err)
		}

		if !waited {
			waited = true
			l.logger.Info("waiting for another flashsync process", slog.String("lock", l.path))

			if l.OnWait != nil {
				l.OnWait()
			}
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("datalock: waiting for %s: %w", l.path, ctx.Err())
		case <-time.After(l.pollInterval):
		}
	}

	if waited {
		l.logger.Debug("data directory lock acquired", slog.Duration("waited", time.Since(start)))
	}

	released := false

	return func() {
		if released {
			return
		}

		released = true
		f.Close()
	}, nil
}
