package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flashsync/internal/mediadb"
)

func rec(path string, added bool, mtime int64) mediadb.Record {
	return mediadb.Record{RelativePath: path, IsAdded: added, ModifiedTime: mtime}
}

func paths(recs []mediadb.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.RelativePath)
	}

	return out
}

func TestResolveConflicts_SameActionDropsBoth(t *testing.T) {
	for _, added := range []bool{true, false} {
		remoteIn := []mediadb.Record{rec("1/a.png", added, 10)}
		localIn := []mediadb.Record{rec("1/a.png", added, 20)}

		remoteOut, localOut, conflicts := ResolveConflicts(remoteIn, localIn)

		assert.Empty(t, remoteOut)
		assert.Empty(t, localOut)
		require.Len(t, conflicts, 1)
		assert.True(t, conflicts[0].Spurious())
	}
}

func TestResolveConflicts_DisagreementRemoteWins(t *testing.T) {
	tests := []struct {
		name        string
		remoteAdded bool
	}{
		{"remote added, local removed", true},
		{"remote removed, local added", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remoteIn := []mediadb.Record{rec("1/a.png", tt.remoteAdded, 10)}
			localIn := []mediadb.Record{rec("1/a.png", !tt.remoteAdded, 99)}

			remoteOut, localOut, conflicts := ResolveConflicts(remoteIn, localIn)

			assert.Equal(t, remoteIn, remoteOut, "remote action stands regardless of timestamps")
			assert.Empty(t, localOut)
			require.Len(t, conflicts, 1)
			assert.False(t, conflicts[0].Spurious())
		})
	}
}

func TestResolveConflicts_UnrelatedPathsKeepOrder(t *testing.T) {
	remoteIn := []mediadb.Record{
		rec("1/c.png", true, 1),
		rec("1/shared.png", true, 1),
		rec("1/a.png", false, 1),
	}
	localIn := []mediadb.Record{
		rec("2/z.png", true, 1),
		rec("1/shared.png", true, 2),
		rec("2/b.png", false, 1),
	}

	remoteOut, localOut, conflicts := ResolveConflicts(remoteIn, localIn)

	assert.Equal(t, []string{"1/c.png", "1/a.png"}, paths(remoteOut))
	assert.Equal(t, []string{"2/z.png", "2/b.png"}, paths(localOut))
	assert.Len(t, conflicts, 1)
}

func TestResolveConflicts_Empty(t *testing.T) {
	remoteOut, localOut, conflicts := ResolveConflicts(nil, nil)

	assert.Empty(t, remoteOut)
	assert.Empty(t, localOut)
	assert.Empty(t, conflicts)
}
