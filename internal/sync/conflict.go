package sync

import "github.com/tonimelisma/flashsync/internal/mediadb"

// Conflict is a path changed on both sides since the last media sync.
type Conflict struct {
	RelativePath string
	Remote       mediadb.Record
	Local        mediadb.Record
}

// Spurious reports whether both sides made the same change, so nothing needs
// to move.
func (c Conflict) Spurious() bool {
	return c.Remote.IsAdded == c.Local.IsAdded
}

// ResolveConflicts removes conflicting paths from the change sets before any
// transfer. When both sides agree on IsAdded the path leaves both sets. When
// they disagree the remote change stands and the local one is dropped.
// Input order is preserved in the outputs.
func ResolveConflicts(remote, local []mediadb.Record) (remoteOut, localOut []mediadb.Record, conflicts []Conflict) {
	remoteByPath := make(map[string]mediadb.Record, len(remote))
	for _, r := range remote {
		remoteByPath[r.RelativePath] = r
	}

	dropRemote := make(map[string]bool)

	localOut = make([]mediadb.Record, 0, len(local))

	for _, l := range local {
		r, ok := remoteByPath[l.RelativePath]
		if !ok {
			localOut = append(localOut, l)
			continue
		}

		c := Conflict{RelativePath: l.RelativePath, Remote: r, Local: l}
		conflicts = append(conflicts, c)

		if c.Spurious() {
			dropRemote[l.RelativePath] = true
		}
	}

	remoteOut = make([]mediadb.Record, 0, len(remote))

	for _, r := range remote {
		if !dropRemote[r.RelativePath] {
			remoteOut = append(remoteOut, r)
		}
	}

	return remoteOut, localOut, conflicts
}
