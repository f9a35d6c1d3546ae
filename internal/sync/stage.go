package sync

import (
	"errors"
	"fmt"

	"github.com/tonimelisma/flashsync/internal/remote"
)

// Sentinel errors for failures the sync package itself detects.
var (
	ErrCorruptRemoteIndex = errors.New("sync: remote media index is corrupt")
	ErrCorruptDownload    = errors.New("sync: downloaded collection is corrupt")
	ErrCorruptCollection  = errors.New("sync: local collection is corrupt")
	ErrInsufficientSpace  = errors.New("sync: not enough free disk space")
)

// Stage is a step of the full sync state machine. Stages only move forward;
// a failure in any stage jumps straight to StageCleanup.
type Stage int

const (
	StageIdle Stage = iota
	StageAuthenticating
	StagePreparingFolders
	StageUploading
	StageDownloading
	StageSyncingMedia
	StageFinished
	StageCleanup
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAuthenticating:
		return "authenticating"
	case StagePreparingFolders:
		return "preparing_folders"
	case StageUploading:
		return "uploading"
	case StageDownloading:
		return "downloading"
	case StageSyncingMedia:
		return "syncing_media"
	case StageFinished:
		return "finished"
	case StageCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError is the single failure a sync pass returns. Message is the one
// line shown to the user; Err keeps the full chain for logs and errors.Is.
type StageError struct {
	Stage    Stage
	Category remote.Category
	Message  string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("sync: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// userMessage renders err as one line, preferring sync-level wording for the
// failures this package detects and the store's wording for the rest.
func userMessage(store remote.Store, err error) string {
	switch {
	case errors.Is(err, ErrCorruptRemoteIndex):
		return "The media index on the remote is damaged. Media was not synced."
	case errors.Is(err, ErrInsufficientSpace):
		return "There is not enough free disk space to download the collection."
	case errors.Is(err, ErrCorruptCollection):
		return "The local collection is damaged. It was not uploaded."
	case errors.Is(err, ErrCorruptDownload):
		return "The downloaded collection is damaged. The local collection was left unchanged."
	default:
		return store.TranslateError(err)
	}
}
