package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
// Owner read/write only: the file may hold S3 credentials.
const configFilePermissions = 0o600

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteDefault when the file is already there.
var ErrConfigExists = errors.New("config: file already exists")

// configTemplate is the config file written by "config init". Every setting
// is present as a commented-out default so users can discover each option.
const configTemplate = `# flashsync configuration

# Remote store: onedrive, local, s3
# backend = "onedrive"

# Where the collection, media and sync state live
# data_dir = ""

# Collection database; defaults to <data_dir>/collection.db
# collection_path = ""

# Folder holding everything on the remote
# root_folder = "flashsync"

# Sync media files after the collection
# sync_media = true

# Scratch space for downloads; defaults to the platform cache directory
# temp_dir = ""

# Transfer rate cap such as "5MB/s"; "0" is unlimited
# bandwidth_limit = "0"

# How often sync --watch runs a pass without local changes
# poll_interval = "5m"

# Prometheus metrics for sync --watch, e.g. "127.0.0.1:9464"
# metrics_addr = ""

# Log verbosity: debug, info, warn, error
# log_level = "info"

# Log to a rotated file instead of stderr
# log_file = ""
# log_max_size_mb = 10
# log_retention_days = 30

# [local]
# root = ""

# [s3]
# endpoint = "localhost:9000"
# bucket = "flashsync"
# access_key = ""
# secret_key = ""  # or FLASHSYNC_S3_SECRET_KEY
# region = "us-east-1"
# use_ssl = true
`

// WriteDefault creates path from the commented template. Parent directories
// are created as needed. An existing file is left alone and ErrConfigExists
// is returned.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	slog.Info("creating config file", slog.String("path", path))

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	// Clean up the temp file on any error path.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
