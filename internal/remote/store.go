// Package remote defines the capability interface every sync backend
// implements and ships three backends: OneDrive (Microsoft Graph), MinIO
// (any S3-compatible object store) and LocalFS, a plain directory used for
// tests and offline verification.
//
// All remote paths are slash-separated and relative to the backend's
// application root folder. The empty string names the root folder itself.
package remote

import (
	"context"
	"path"
	"strings"
)

// Item is a snapshot of one entry in the remote namespace. It is never
// mutated after a backend returns it; callers re-fetch to observe changes.
type Item struct {
	Name string
	// LastModified is the backend-reported modification time in unix seconds.
	// Nil when the backend does not report one (S3 prefixes, for example).
	LastModified *int64
	IsFolder     bool
	Size         int64
}

// ModTime returns LastModified, or fallback when the backend reported none.
func (it *Item) ModTime(fallback int64) int64 {
	if it == nil || it.LastModified == nil {
		return fallback
	}

	return *it.LastModified
}

// Store is the set of operations the sync engine needs from a backend.
// Implementations must make Delete idempotent and Download all-or-nothing.
type Store interface {
	// Init constructs or resets backend client state. It performs no I/O.
	Init()

	// Authenticate validates (or re-validates) credentials. Calling it on an
	// already authenticated store forces a credential refresh. Fails with
	// ErrAuthentication when the credentials are invalid or expired.
	Authenticate(ctx context.Context) error

	// EnsureRootFolder creates the application root folder if it is absent.
	// The outcome is cached after the first success in-process.
	EnsureRootFolder(ctx context.Context) error

	// ListChildren enumerates the direct children of a folder. Fails with
	// ErrNotFound when the folder does not exist.
	ListChildren(ctx context.Context, folder string) ([]Item, error)

	// TryGetItem looks up name inside folder. Absence is reported as
	// (nil, nil), never as an error.
	TryGetItem(ctx context.Context, name, folder string) (*Item, error)

	// GetItem looks up a file by path and fails with ErrNotFound when absent.
	GetItem(ctx context.Context, remotePath string) (*Item, error)

	// Download replaces destination with the remote file's content.
	Download(ctx context.Context, remotePath, destination string) error

	// Upload copies a local file to remotePath, creating intermediate
	// folders and overwriting any existing file.
	Upload(ctx context.Context, source, remotePath string) error

	// Delete removes a remote file. Deleting an absent path succeeds.
	Delete(ctx context.Context, remotePath string) error

	// Close releases client resources.
	Close() error

	// TranslateError maps an error returned by this store to a single
	// human-readable line.
	TranslateError(err error) string
}

// Join builds a remote path from slash-separated elements, dropping empty
// elements so Join("", "a") == "a".
func Join(elem ...string) string {
	return strings.TrimPrefix(path.Join(elem...), "/")
}

// Split returns the folder and name parts of a remote path.
func Split(remotePath string) (folder, name string) {
	folder, name = path.Split(remotePath)

	return strings.TrimSuffix(folder, "/"), name
}
