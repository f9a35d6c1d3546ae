package config

import (
	"fmt"
	"io"
)

// redacted replaces secrets in rendered output.
const redacted = "********"

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers the "config show" command. Secrets are masked.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	renderGeneral(ew, cfg)
	renderLogging(ew, &cfg.LoggingConfig)

	switch cfg.Backend {
	case BackendLocal:
		ew.printf("[local]\n")
		ew.printf("  root            = %q\n", cfg.Local.Root)
	case BackendS3:
		renderS3(ew, &cfg.S3)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderGeneral(ew *errWriter, cfg *Config) {
	ew.printf("backend           = %q\n", cfg.Backend)
	ew.printf("data_dir          = %q\n", cfg.DataDir)
	ew.printf("collection_path   = %q\n", cfg.CollectionPath)
	ew.printf("root_folder       = %q\n", cfg.RootFolder)
	ew.printf("sync_media        = %t\n", cfg.SyncMedia)
	ew.printf("temp_dir          = %q\n", cfg.TempDir)
	ew.printf("bandwidth_limit   = %q\n", cfg.BandwidthLimit)
	ew.printf("poll_interval     = %q\n", cfg.PollInterval)

	if cfg.MetricsAddr != "" {
		ew.printf("metrics_addr      = %q\n", cfg.MetricsAddr)
	}

	ew.printf("\n")
}

func renderLogging(ew *errWriter, l *LoggingConfig) {
	ew.printf("log_level          = %q\n", l.LogLevel)
	ew.printf("log_file           = %q\n", l.LogFile)
	ew.printf("log_max_size_mb    = %d\n", l.LogMaxSizeMB)
	ew.printf("log_retention_days = %d\n", l.LogRetentionDays)
	ew.printf("\n")
}

func renderS3(ew *errWriter, s *S3Config) {
	secret := ""
	if s.SecretKey != "" {
		secret = redacted
	}

	ew.printf("[s3]\n")
	ew.printf("  endpoint   = %q\n", s.Endpoint)
	ew.printf("  bucket     = %q\n", s.Bucket)
	ew.printf("  access_key = %q\n", s.AccessKey)
	ew.printf("  secret_key = %q\n", secret)
	ew.printf("  region     = %q\n", s.Region)
	ew.printf("  use_ssl    = %t\n", s.UseSSL)
}
