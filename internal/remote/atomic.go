package remote

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	dirPerms  = 0o700
	filePerms = 0o600
)

// writeFileAtomic fills a temp file next to dest and renames it over dest,
// so a failed transfer never leaves a truncated file at the final path.
func writeFileAtomic(dest string, fill func(w io.Writer) error) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("remote: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.partial")
	if err != nil {
		return fmt.Errorf("remote: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := fill(tmp); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("remote: syncing %s: %w", tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("remote: closing %s: %w", tmpPath, err)
	}

	if err := os.Chmod(tmpPath, filePerms); err != nil {
		return fmt.Errorf("remote: setting permissions on %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("remote: renaming into %s: %w", dest, err)
	}

	success = true

	return nil
}
