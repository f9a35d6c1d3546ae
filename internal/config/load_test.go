package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
backend = "s3"
data_dir = "/srv/flashsync"
collection_path = "/srv/flashsync/main.db"
root_folder = "cards"
sync_media = false
temp_dir = "/tmp/flashsync"
bandwidth_limit = "5MB/s"
poll_interval = "10m"
metrics_addr = "127.0.0.1:9464"
log_level = "debug"
log_file = "/var/log/flashsync.log"
log_max_size_mb = 5
log_retention_days = 7

[local]
root = "/mnt/share"

[s3]
endpoint = "minio.local:9000"
bucket = "decks"
access_key = "AKIA"
secret_key = "secret"
region = "eu-west-1"
use_ssl = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendS3, cfg.Backend)
	assert.Equal(t, "/srv/flashsync", cfg.DataDir)
	assert.Equal(t, "/srv/flashsync/main.db", cfg.CollectionPath)
	assert.Equal(t, "cards", cfg.RootFolder)
	assert.False(t, cfg.SyncMedia)
	assert.Equal(t, "/tmp/flashsync", cfg.TempDir)
	assert.Equal(t, "127.0.0.1:9464", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/log/flashsync.log", cfg.LogFile)
	assert.Equal(t, 5, cfg.LogMaxSizeMB)
	assert.Equal(t, 7, cfg.LogRetentionDays)
	assert.Equal(t, "/mnt/share", cfg.Local.Root)
	assert.Equal(t, S3Config{
		Endpoint:  "minio.local:9000",
		Bucket:    "decks",
		AccessKey: "AKIA",
		SecretKey: "secret",
		Region:    "eu-west-1",
		UseSSL:    false,
	}, cfg.S3)

	bw, err := cfg.BandwidthBytesPerSec()
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), bw)

	poll, err := cfg.PollDuration()
	require.NoError(t, err)
	assert.Equal(t, "10m0s", poll.String())
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `log_level = "warn"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, BackendOneDrive, cfg.Backend)
	assert.Equal(t, defaultRootFolder, cfg.RootFolder)
	assert.True(t, cfg.SyncMedia)
	assert.Equal(t, defaultPollInterval, cfg.PollInterval)
	assert.Equal(t, defaultS3Region, cfg.S3.Region)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `backend = `)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrors(t *testing.T) {
	path := writeTestConfig(t, `
backend = "ftp"
log_level = "loud"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	dataFile := t.TempDir()
	path := writeTestConfig(t, `
backend = "s3"
data_dir = "`+filepath.Join(dataFile, "file")+`"

[s3]
endpoint = "localhost:9000"
bucket = "cards"
`)

	env := EnvOverrides{ConfigPath: path, DataDir: filepath.Join(dataFile, "env")}

	cfg, err := Resolve(env, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, BackendS3, cfg.Backend)
	assert.Equal(t, filepath.Join(dataFile, "env"), cfg.DataDir)

	cfg, err = Resolve(env, CLIOverrides{Backend: BackendLocal, DataDir: filepath.Join(dataFile, "cli")})
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, filepath.Join(dataFile, "cli"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dataFile, "cli", localRemoteDirName), cfg.Local.Root)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, `backend = "ftp"`)
	cliPath := writeTestConfig(t, `backend = "local"`)

	cfg, err := Resolve(EnvOverrides{ConfigPath: envPath, DataDir: t.TempDir()}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, cfg.Backend)
}

func TestResolve_ExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeTestConfig(t, `
data_dir = "~/cards"
temp_dir = "~/scratch"
`)

	cfg, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "cards"), cfg.DataDir)
	assert.Equal(t, filepath.Join(home, "scratch"), cfg.TempDir)
	assert.Equal(t, filepath.Join(home, "cards", tokenFileName), cfg.TokenPath())
}

func TestResolve_RelativePathRejected(t *testing.T) {
	path := writeTestConfig(t, `collection_path = "relative/collection.db"`)

	_, err := Resolve(EnvOverrides{DataDir: t.TempDir()}, CLIOverrides{ConfigPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection_path")
}
