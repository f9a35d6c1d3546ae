//go:build e2e

package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stampGap separates steps that compare whole-second sync stamps.
const stampGap = 1100 * time.Millisecond

func newRootFolder() string {
	return fmt.Sprintf("flashsync-e2e-%d", time.Now().UnixNano())
}

// TestE2E_TwoDeviceRoundTrip moves a deck and its media from one device to
// another, then propagates a deletion back.
func TestE2E_TwoDeviceRoundTrip(t *testing.T) {
	rootFolder := newRootFolder()
	remoteBase := t.TempDir()

	laptop := newDevice(t, "laptop", rootFolder, remoteBase)
	phone := newDevice(t, "phone", rootFolder, remoteBase)

	src := filepath.Join(t.TempDir(), "robin.mp3")
	require.NoError(t, os.WriteFile(src, []byte("tweet tweet"), 0o600))

	var deckID string

	t.Run("laptop_creates_and_uploads", func(t *testing.T) {
		stdout, _ := laptop.run("deck", "add", "Birds")
		deckID = strings.TrimSpace(stdout)
		require.NotEmpty(t, deckID)

		laptop.run("media", "add", deckID, src)

		stdout, _ = laptop.run("sync")
		assert.Contains(t, stdout, "Collection uploaded")
		assert.Contains(t, stdout, "First media sync")
		assert.Contains(t, stdout, "1 uploaded")
	})

	time.Sleep(stampGap)

	t.Run("phone_downloads", func(t *testing.T) {
		stdout, _ := phone.run("sync")
		assert.Contains(t, stdout, "Collection downloaded")
		assert.Contains(t, stdout, "1 downloaded")

		stdout, _ = phone.run("deck", "list")
		assert.Contains(t, stdout, deckID+"\tBirds")

		data, err := os.ReadFile(phone.mediaPath(deckID, "robin.mp3"))
		require.NoError(t, err)
		assert.Equal(t, "tweet tweet", string(data))
	})

	time.Sleep(stampGap)

	t.Run("phone_deletes", func(t *testing.T) {
		phone.run("media", "rm", deckID, "robin.mp3")

		stdout, _ := phone.run("sync")
		assert.Contains(t, stdout, "1 deleted remotely")
	})

	time.Sleep(stampGap)

	t.Run("laptop_applies_deletion", func(t *testing.T) {
		stdout, _ := laptop.run("sync")
		assert.Contains(t, stdout, "1 deleted locally")
		assert.NoFileExists(t, laptop.mediaPath(deckID, "robin.mp3"))
	})

	t.Run("status_is_clean", func(t *testing.T) {
		stdout, _ := laptop.run("status")
		assert.Contains(t, stdout, "Pending media:  0")
		assert.NotContains(t, stdout, "never")
	})
}

// TestE2E_SecondSyncIsQuiet checks that an unchanged device moves no media.
func TestE2E_SecondSyncIsQuiet(t *testing.T) {
	dev := newDevice(t, "desktop", newRootFolder(), t.TempDir())

	stdout, _ := dev.run("deck", "add", "Verbs")
	deckID := strings.TrimSpace(stdout)

	src := filepath.Join(t.TempDir(), "cover.png")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0o600))
	dev.run("deck", "image", deckID, src)

	dev.run("sync")
	time.Sleep(stampGap)

	stdout, _ = dev.run("sync")
	assert.Contains(t, stdout, "Collection uploaded")
	assert.Contains(t, stdout, "0 downloaded, 0 uploaded, 0 deleted locally, 0 deleted remotely")
}

// TestE2E_ConfigRejectsUnknownKeys runs the binary against a config with a
// misspelled key.
func TestE2E_ConfigRejectsUnknownKeys(t *testing.T) {
	dev := newDevice(t, "typo", newRootFolder(), t.TempDir())

	data, err := os.ReadFile(dev.configPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dev.configPath, append([]byte("sync_mediaa = true\n"), data...), 0o600))

	_, stderr, err := dev.exec("status")
	require.Error(t, err)
	assert.Contains(t, stderr, `did you mean "sync_media"`)
}
