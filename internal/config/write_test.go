package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefault_TemplateLoadsAsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	require.NoError(t, WriteDefault(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(configFilePermissions), info.Mode().Perm())

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestWriteDefault_ExistingFileUntouched(t *testing.T) {
	path := writeTestConfig(t, `backend = "local"`)

	err := WriteDefault(path)
	require.ErrorIs(t, err, ErrConfigExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `backend = "local"`, string(data))
}

func TestRenderEffective_MasksSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendS3
	cfg.DataDir = "/data"
	cfg.S3.Endpoint = "localhost:9000"
	cfg.S3.Bucket = "cards"
	cfg.S3.SecretKey = "hunter2"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))

	out := buf.String()
	assert.Contains(t, out, `backend           = "s3"`)
	assert.Contains(t, out, `bucket     = "cards"`)
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "hunter2")
}

func TestRenderEffective_LocalSection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendLocal
	cfg.Local.Root = "/remote"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))
	assert.Contains(t, buf.String(), "[local]")
	assert.NotContains(t, buf.String(), "[s3]")
}
