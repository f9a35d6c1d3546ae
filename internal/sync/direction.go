package sync

// Direction is the single global transfer direction of a full sync pass. It
// governs the collection database and deck images; media has its own
// per-file policy.
type Direction int

const (
	DirectionUpload Direction = iota
	DirectionDownload
)

func (d Direction) String() string {
	if d == DirectionDownload {
		return "download"
	}

	return "upload"
}

// SyncState holds both sides' last full-sync times. RemoteLastSync is nil
// when the remote has no preferences document (never synced).
type SyncState struct {
	LocalLastSync  int64
	RemoteLastSync *int64
}

// ChooseDirection returns DirectionUpload when the remote has never been
// synced or the local side synced at or after the remote; ties upload.
func ChooseDirection(state SyncState) Direction {
	if state.RemoteLastSync == nil || state.LocalLastSync >= *state.RemoteLastSync {
		return DirectionUpload
	}

	return DirectionDownload
}
