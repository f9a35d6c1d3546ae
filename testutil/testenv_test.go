package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`# credentials
FLASHSYNC_TESTUTIL_A = "quoted value"
FLASHSYNC_TESTUTIL_B=from-file
not a pair

FLASHSYNC_TESTUTIL_C='single'
`), 0o600))

	t.Setenv("FLASHSYNC_TESTUTIL_A", "")
	os.Unsetenv("FLASHSYNC_TESTUTIL_A")
	t.Setenv("FLASHSYNC_TESTUTIL_B", "from-env")
	t.Setenv("FLASHSYNC_TESTUTIL_C", "")
	os.Unsetenv("FLASHSYNC_TESTUTIL_C")

	LoadDotEnv(path)

	assert.Equal(t, "quoted value", os.Getenv("FLASHSYNC_TESTUTIL_A"))
	assert.Equal(t, "from-env", os.Getenv("FLASHSYNC_TESTUTIL_B"))
	assert.Equal(t, "single", os.Getenv("FLASHSYNC_TESTUTIL_C"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NotPanics(t, func() {
		LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
	})
}

func TestFindModuleRoot(t *testing.T) {
	root := FindModuleRoot("")
	require.NotEmpty(t, root)
	assert.FileExists(t, filepath.Join(root, "go.mod"))
}
