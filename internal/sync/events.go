package sync

import "context"

// Reporter receives progress for display. Calls arrive in the order the
// work completes and cannot fail the pass.
type Reporter interface {
	SetStatus(text string)
	SetProgress(current, total int)
}

// Notifier is told about local changes other components may cache.
type Notifier interface {
	// CollectionReplaced fires after a downloaded collection replaced the
	// local one; views holding deck lists should reload.
	CollectionReplaced()

	// DeckImageChanged fires once per deck image changed by a download.
	// imagePath is empty when the deck reverted to the default image.
	DeckImageChanged(deckID int64, imagePath string, modified int64)
}

// Confirmer asks the user to approve destructive recovery.
type Confirmer interface {
	// ConfirmForceMediaUpload is asked when the remote media index cannot be
	// read. Returning true re-uploads every local media file and replaces
	// the remote index.
	ConfirmForceMediaUpload(ctx context.Context) bool
}

type nopReporter struct{}

func (nopReporter) SetStatus(string) {}
func (nopReporter) SetProgress(int, int) {}

type nopNotifier struct{}

func (nopNotifier) CollectionReplaced() {}
func (nopNotifier) DeckImageChanged(int64, string, int64) {}

// declineConfirmer never approves destructive recovery.
type declineConfirmer struct{}

func (declineConfirmer) ConfirmForceMediaUpload(context.Context) bool { return false }
