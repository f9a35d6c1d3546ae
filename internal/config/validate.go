package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"
)

// Validation range constants.
const (
	minPollInterval  = 1 * time.Minute
	minLogRetention  = 1
	minLogMaxSizeMB  = 1
	maxRootFolderLen = 255
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBackend(cfg)...)
	errs = append(errs, validateRootFolder(cfg.RootFolder)...)
	errs = append(errs, validateTransfers(cfg)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("metrics_addr: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense once the override
// chain and path defaults have been applied.
func ValidateResolved(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAbsolute("data_dir", cfg.DataDir, true)...)
	errs = append(errs, validateAbsolute("collection_path", cfg.CollectionPath, false)...)
	errs = append(errs, validateAbsolute("temp_dir", cfg.TempDir, false)...)
	errs = append(errs, validateAbsolute("log_file", cfg.LogFile, false)...)

	if cfg.Backend == BackendLocal {
		errs = append(errs, validateAbsolute("local.root", cfg.Local.Root, true)...)
	}

	// Either half may come from the environment.
	if cfg.Backend == BackendS3 && (cfg.S3.AccessKey == "") != (cfg.S3.SecretKey == "") {
		errs = append(errs, errors.New("s3.access_key and s3.secret_key: must be set together"))
	}

	return errors.Join(errs...)
}

func validateAbsolute(field, path string, required bool) []error {
	if path == "" {
		if required {
			return []error{fmt.Errorf("%s: must not be empty", field)}
		}

		return nil
	}

	if !filepath.IsAbs(path) {
		return []error{fmt.Errorf("%s: must be absolute after expansion, got %q", field, path)}
	}

	return nil
}

var validBackends = map[string]bool{
	BackendOneDrive: true,
	BackendLocal:    true,
	BackendS3:       true,
}

func validateBackend(cfg *Config) []error {
	if !validBackends[cfg.Backend] {
		return []error{fmt.Errorf("backend: must be one of onedrive, local, s3; got %q", cfg.Backend)}
	}

	if cfg.Backend != BackendS3 {
		return nil
	}

	var errs []error

	if cfg.S3.Endpoint == "" {
		errs = append(errs, errors.New("s3.endpoint: must not be empty"))
	}

	if cfg.S3.Bucket == "" {
		errs = append(errs, errors.New("s3.bucket: must not be empty"))
	}

	return errs
}

func validateRootFolder(name string) []error {
	switch {
	case name == "":
		return []error{errors.New("root_folder: must not be empty")}
	case strings.ContainsAny(name, `/\`):
		return []error{fmt.Errorf("root_folder: must be a single folder name, got %q", name)}
	case name == "." || name == "..":
		return []error{fmt.Errorf("root_folder: invalid name %q", name)}
	case len(name) > maxRootFolderLen:
		return []error{fmt.Errorf("root_folder: must be at most %d bytes", maxRootFolderLen)}
	}

	return nil
}

func validateTransfers(cfg *Config) []error {
	var errs []error

	if _, err := ParseBandwidth(cfg.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	errs = append(errs, validateDurationMin("poll_interval", cfg.PollInterval, minPollInterval)...)

	return errs
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)

	if l.LogMaxSizeMB < minLogMaxSizeMB {
		errs = append(errs, fmt.Errorf("log_max_size_mb: must be >= %d, got %d",
			minLogMaxSizeMB, l.LogMaxSizeMB))
	}

	if l.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("log_retention_days: must be >= %d, got %d",
			minLogRetention, l.LogRetentionDays))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}
