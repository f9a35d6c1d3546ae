package synclog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flashsync/internal/mediadb"
)

func TestDone_ExactMatchOnly(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, filepath.Join(t.TempDir(), "sync.db"), slog.Default())
	require.NoError(t, err)
	defer l.Close()

	rec := mediadb.Record{RelativePath: "5/cat.png", IsAdded: true, ModifiedTime: 100}
	assert.False(t, l.Done(rec))

	l.Record(rec)
	assert.True(t, l.Done(rec))

	later := rec
	later.ModifiedTime = 101
	assert.False(t, l.Done(later), "one second newer must transfer again")

	removed := rec
	removed.IsAdded = false
	assert.False(t, l.Done(removed))
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sync.db")

	l, err := Open(ctx, path, slog.Default())
	require.NoError(t, err)

	for i := range 200 {
		l.Record(mediadb.Record{RelativePath: fmt.Sprintf("1/%d.png", i), IsAdded: true, ModifiedTime: int64(i)})
	}

	require.NoError(t, l.Close())
	assert.True(t, Exists(path))

	l, err = Open(ctx, path, slog.Default())
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, 200, l.Len())
	assert.True(t, l.Done(mediadb.Record{RelativePath: "1/199.png", IsAdded: true, ModifiedTime: 199}))
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sync.db")

	l, err := Open(ctx, path, slog.Default())
	require.NoError(t, err)
	l.Record(mediadb.Record{RelativePath: "1/a.png", IsAdded: true, ModifiedTime: 1})
	require.NoError(t, l.Close())

	require.NoError(t, Remove(path))
	assert.False(t, Exists(path))
	require.NoError(t, Remove(path))

	l, err = Open(ctx, path, slog.Default())
	require.NoError(t, err)
	defer l.Close()
	assert.Zero(t, l.Len())
}
