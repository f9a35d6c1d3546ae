package config

// Default values for configuration options. These are chosen to be safe and
// work out of the box without a config file.
const (
	defaultBackend          = BackendOneDrive
	defaultRootFolder       = "flashsync"
	defaultSyncMedia        = true
	defaultBandwidthLimit   = "0"
	defaultPollInterval     = "5m"
	defaultLogLevel         = "info"
	defaultLogMaxSizeMB     = 10
	defaultLogRetentionDays = 30
	defaultS3Region         = "us-east-1"
	defaultS3UseSSL         = true
)

// DefaultConfig returns a Config populated with all default values. Path
// keys stay empty here and are filled in by Resolve, which knows the
// platform directories and the final data_dir.
func DefaultConfig() *Config {
	return &Config{
		Backend:        defaultBackend,
		RootFolder:     defaultRootFolder,
		SyncMedia:      defaultSyncMedia,
		BandwidthLimit: defaultBandwidthLimit,
		PollInterval:   defaultPollInterval,
		LoggingConfig:  defaultLoggingConfig(),
		S3:             defaultS3Config(),
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:         defaultLogLevel,
		LogMaxSizeMB:     defaultLogMaxSizeMB,
		LogRetentionDays: defaultLogRetentionDays,
	}
}

func defaultS3Config() S3Config {
	return S3Config{
		Region: defaultS3Region,
		UseSSL: defaultS3UseSSL,
	}
}
