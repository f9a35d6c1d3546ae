package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// pidFileName is the watch lock inside the data directory.
const pidFileName = "flashsync.pid"

// errWatchRunning is returned when another sync --watch holds the data
// directory. Two watchers would race on the collection and the media index.
var errWatchRunning = errors.New("another sync --watch is using this data directory")

// watchLock is the flock'd PID file a watch process holds for its lifetime.
type watchLock struct {
	path string
	f    *os.File
}

func watchLockPath(dataDir string) string {
	return filepath.Join(dataDir, pidFileName)
}

// acquireWatchLock takes the data directory's watch lock and records our PID
// in it. The lock is released by Release or when the process dies, so a file
// left by a crash never blocks the next watcher.
func acquireWatchLock(dataDir string) (*watchLock, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is not set")
	}

	if err := os.MkdirAll(dataDir, dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := watchLockPath(dataDir)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening watch lock: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()

		if pid, readErr := readWatchPID(path); readErr == nil {
			return nil, fmt.Errorf("%w (PID %d)", errWatchRunning, pid)
		}

		return nil, errWatchRunning
	}

	lock := &watchLock{path: path, f: f}
	if err := lock.writePID(); err != nil {
		lock.Release()
		return nil, err
	}

	return lock, nil
}

func (l *watchLock) writePID() error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncating watch lock: %w", err)
	}

	if _, err := l.f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("writing watch lock: %w", err)
	}

	// Readers such as status look at the file without taking the lock.
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing watch lock: %w", err)
	}

	return nil
}

// Release removes the file, then drops the lock. Safe to call twice.
func (l *watchLock) Release() {
	if l.f == nil {
		return
	}

	os.Remove(l.path)
	l.f.Close()
	l.f = nil
}

// readWatchPID parses the PID recorded in a watch lock file.
func readWatchPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading watch lock: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s", path)
	}

	return pid, nil
}

// runningWatchPID reports the PID of a live sync --watch on dataDir. A file
// left behind by a dead process is removed.
func runningWatchPID(dataDir string) (int, bool) {
	path := watchLockPath(dataDir)

	pid, err := readWatchPID(path)
	if err != nil {
		return 0, false
	}

	// Signal 0 probes for the process without delivering anything.
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		os.Remove(path)
		return 0, false
	}

	return pid, true
}
