package config

import "os"

// Environment variables read by Resolve. They sit between the config file and
// the command-line flags in precedence.
const (
	EnvConfig      = "FLASHSYNC_CONFIG"
	EnvBackend     = "FLASHSYNC_BACKEND"
	EnvDataDir     = "FLASHSYNC_DATA_DIR"
	EnvS3AccessKey = "FLASHSYNC_S3_ACCESS_KEY"
	EnvS3SecretKey = "FLASHSYNC_S3_SECRET_KEY"
)

// EnvOverrides is a snapshot of the FLASHSYNC_* variables. Empty fields mean
// "not set".
type EnvOverrides struct {
	ConfigPath string
	Backend    string
	DataDir    string

	// S3 credentials, so the secret can stay out of config.toml.
	S3AccessKey string
	S3SecretKey string
}

// ReadEnvOverrides snapshots the process environment.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		Backend:     os.Getenv(EnvBackend),
		DataDir:     os.Getenv(EnvDataDir),
		S3AccessKey: os.Getenv(EnvS3AccessKey),
		S3SecretKey: os.Getenv(EnvS3SecretKey),
	}
}

// apply copies every set variable onto cfg. ConfigPath is consumed earlier,
// when choosing which file to load.
func (e EnvOverrides) apply(cfg *Config) {
	for _, o := range []struct {
		val string
		dst *string
	}{
		{e.Backend, &cfg.Backend},
		{e.DataDir, &cfg.DataDir},
		{e.S3AccessKey, &cfg.S3.AccessKey},
		{e.S3SecretKey, &cfg.S3.SecretKey},
	} {
		if o.val != "" {
			*o.dst = o.val
		}
	}
}
