package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flashsync/internal/config"
)

func TestRequireOneDrive(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.NoError(t, requireOneDrive(cfg))

	cfg.Backend = config.BackendLocal
	err := requireOneDrive(cfg)
	require.ErrorIs(t, err, errNoLoginNeeded)
	assert.Contains(t, err.Error(), `backend "local" needs no login`)
}

func TestPrepareAppFolder_CreatesRootFolder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendLocal
	cfg.Local.Root = t.TempDir()

	require.NoError(t, prepareAppFolder(context.Background(), cfg, testLogger(t)))
	assert.DirExists(t, filepath.Join(cfg.Local.Root, cfg.RootFolder))
}

func TestPrepareAppFolder_UnreachableStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendLocal
	cfg.Local.Root = filepath.Join(t.TempDir(), "unmounted")

	err := prepareAppFolder(context.Background(), cfg, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Signing in to the local sync folder failed")
}

func TestLogin_RejectedForLocalBackend(t *testing.T) {
	env := newTestEnv(t)

	err := env.execute(t, "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs no login")
}

func TestLogout_RejectedForLocalBackend(t *testing.T) {
	env := newTestEnv(t)

	err := env.execute(t, "logout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs no login")
}
