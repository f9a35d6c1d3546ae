package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{EnvConfig, EnvBackend, EnvDataDir, EnvS3AccessKey, EnvS3SecretKey} {
		t.Setenv(key, "")
	}
}

func TestReadEnvOverrides(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())

	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvBackend, "s3")
	t.Setenv(EnvS3SecretKey, "from-env")

	assert.Equal(t, EnvOverrides{
		ConfigPath:  "/custom/config.toml",
		Backend:     "s3",
		S3SecretKey: "from-env",
	}, ReadEnvOverrides())
}

func TestEnvOverrides_ApplyLeavesUnsetFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/from/file"
	cfg.S3.AccessKey = "file-key"

	EnvOverrides{Backend: BackendS3, S3SecretKey: "env-secret"}.apply(cfg)

	assert.Equal(t, BackendS3, cfg.Backend)
	assert.Equal(t, "/from/file", cfg.DataDir)
	assert.Equal(t, "file-key", cfg.S3.AccessKey)
	assert.Equal(t, "env-secret", cfg.S3.SecretKey)
}

func TestResolve_S3SecretFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`backend = "s3"

[s3]
endpoint = "localhost:9000"
bucket = "cards"
access_key = "AKIA"
`), 0o600))

	env := EnvOverrides{DataDir: t.TempDir()}

	_, err := Resolve(env, CLIOverrides{ConfigPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")

	env.S3SecretKey = "from-env"

	cfg, err := Resolve(env, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "AKIA", cfg.S3.AccessKey)
	assert.Equal(t, "from-env", cfg.S3.SecretKey)
}
