package collection

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDeckAndDeckIDs(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, filepath.Join(t.TempDir(), FileName), nil)
	require.NoError(t, err)
	defer c.Close()

	id1, err := c.AddDeck(ctx, "Spanish", 1_700_000_000_000)
	require.NoError(t, err)
	id2, err := c.AddDeck(ctx, "French", 1_700_000_000_000)
	require.NoError(t, err)

	assert.Equal(t, int64(1_700_000_000_000), id1)
	assert.Equal(t, id1+1, id2, "same-millisecond decks get distinct ids")

	ids, err := c.DeckIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{id1: true, id2: true}, ids)

	decks, err := c.Decks(ctx)
	require.NoError(t, err)
	require.Len(t, decks, 2)
	assert.Equal(t, "French", decks[0].Name)

	_, err = c.AddDeck(ctx, "French", 1_800_000_000_000)
	assert.Error(t, err, "deck names are unique")
}

func TestCheckAndValidate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), FileName)

	c, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, c.Check(ctx))
	require.NoError(t, c.Close())

	require.NoError(t, Validate(ctx, path, nil))

	junk := filepath.Join(t.TempDir(), "junk.db")
	require.NoError(t, os.WriteFile(junk, []byte("garbage bytes that are certainly not a sqlite header"), 0o600))
	assert.ErrorIs(t, Validate(ctx, junk, nil), ErrCorrupt)
}

func TestManager_ExclusiveCheckout(t *testing.T) {
	ctx := context.Background()
	m := NewManager(filepath.Join(t.TempDir(), FileName), nil)

	h, err := m.Checkout(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = m.Checkout(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())

	h2, err := m.Checkout(ctx)
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}

func TestHandle_Replace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	other, err := Open(ctx, filepath.Join(dir, "other.db"), nil)
	require.NoError(t, err)
	_, err = other.AddDeck(ctx, "From remote", 42_000)
	require.NoError(t, err)

	snap := filepath.Join(dir, "download.db")
	require.NoError(t, other.SnapshotTo(ctx, snap))
	require.NoError(t, other.Close())

	m := NewManager(filepath.Join(dir, FileName), nil)
	h, err := m.Checkout(ctx)
	require.NoError(t, err)
	defer h.Release()

	_, err = h.Collection().AddDeck(ctx, "Local only", 1_000)
	require.NoError(t, err)

	require.NoError(t, h.Replace(ctx, snap))

	decks, err := h.Collection().Decks(ctx)
	require.NoError(t, err)
	require.Len(t, decks, 1)
	assert.Equal(t, "From remote", decks[0].Name)

	_, err = os.Stat(snap)
	assert.True(t, os.IsNotExist(err), "source is moved, not copied")
}
