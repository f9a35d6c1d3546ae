// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for flashsync. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

import (
	"path/filepath"
	"time"
)

// Backend names accepted by the backend key.
const (
	BackendOneDrive = "onedrive"
	BackendLocal    = "local"
	BackendS3       = "s3"
)

// tokenFileName is the OneDrive token file inside the data directory.
const tokenFileName = "onedrive-token.json"

// Config is the top-level configuration structure parsed from a TOML file.
// Most keys are flat; the backend-specific ones live in [local] and [s3].
type Config struct {
	Backend        string `toml:"backend"`
	DataDir        string `toml:"data_dir"`
	CollectionPath string `toml:"collection_path"`
	RootFolder     string `toml:"root_folder"`
	SyncMedia      bool   `toml:"sync_media"`
	TempDir        string `toml:"temp_dir"`
	BandwidthLimit string `toml:"bandwidth_limit"`
	PollInterval   string `toml:"poll_interval"`
	MetricsAddr    string `toml:"metrics_addr"`

	LoggingConfig

	Local LocalConfig `toml:"local"`
	S3    S3Config    `toml:"s3"`
}

// LoggingConfig controls log output. A non-empty LogFile sends logs to a
// rotated file instead of stderr.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogMaxSizeMB     int    `toml:"log_max_size_mb"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// LocalConfig configures the local-directory backend.
type LocalConfig struct {
	Root string `toml:"root"`
}

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// CLIOverrides holds values from command-line flags. Empty strings mean the
// flag was not given.
type CLIOverrides struct {
	ConfigPath string
	Backend    string
	DataDir    string
}

// TokenPath returns where the OneDrive backend keeps its OAuth token.
func (c *Config) TokenPath() string {
	return filepath.Join(c.DataDir, tokenFileName)
}

// BandwidthBytesPerSec returns the parsed bandwidth_limit; 0 means unlimited.
func (c *Config) BandwidthBytesPerSec() (int64, error) {
	return ParseBandwidth(c.BandwidthLimit)
}

// PollDuration returns the parsed poll_interval.
func (c *Config) PollDuration() (time.Duration, error) {
	return time.ParseDuration(c.PollInterval)
}
