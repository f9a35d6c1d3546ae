package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// LocalFS is a Store backed by a directory on the local filesystem. It stands
// in for a cloud backend in tests and for offline verification; the "remote"
// root folder lives at <base>/<rootFolder>.
type LocalFS struct {
	base       string
	rootFolder string
	limiter    *Limiter
	logger     *slog.Logger

	rootReady bool
}

// NewLocalFS creates a LocalFS rooted at base. limiter may be nil.
func NewLocalFS(base, rootFolder string, limiter *Limiter, logger *slog.Logger) *LocalFS {
	if logger == nil {
		logger = slog.Default()
	}

	return &LocalFS{
		base:       base,
		rootFolder: rootFolder,
		limiter:    limiter,
		logger:     logger,
	}
}

// Init is a no-op: LocalFS holds no client state beyond the root cache.
func (s *LocalFS) Init() {}

// Authenticate checks that the base directory is reachable. There are no
// credentials, so an unreachable base is reported as an authentication
// failure, the closest user-facing category.
func (s *LocalFS) Authenticate(_ context.Context) error {
	info, err := os.Stat(s.base)
	if err != nil {
		return fmt.Errorf("%w: local store %s: %w", ErrAuthentication, s.base, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: local store %s is not a directory", ErrAuthentication, s.base)
	}

	return nil
}

// EnsureRootFolder creates <base>/<rootFolder> once per process.
func (s *LocalFS) EnsureRootFolder(_ context.Context) error {
	if s.rootReady {
		return nil
	}

	root := filepath.Join(s.base, s.rootFolder)
	if err := os.MkdirAll(root, dirPerms); err != nil {
		return classifyFSError(fmt.Errorf("remote: creating root folder %s: %w", root, err))
	}

	s.logger.Debug("local root folder ready", slog.String("path", root))
	s.rootReady = true

	return nil
}

// ListChildren reads the folder's directory entries.
func (s *LocalFS) ListChildren(_ context.Context, folder string) ([]Item, error) {
	full, err := s.fullPath(folder)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, classifyFSError(fmt.Errorf("remote: listing %q: %w", folder, err))
	}

	items := make([]Item, 0, len(entries))

	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".partial") {
			continue
		}

		info, infoErr := e.Info()
		if infoErr != nil {
			// Raced with a delete; the entry is gone.
			continue
		}

		items = append(items, itemFromInfo(info))
	}

	return items, nil
}

// TryGetItem stats folder/name and reports absence as (nil, nil).
func (s *LocalFS) TryGetItem(ctx context.Context, name, folder string) (*Item, error) {
	item, err := s.GetItem(ctx, Join(folder, name))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}

	return item, err
}

// GetItem stats a path and fails with ErrNotFound when absent.
func (s *LocalFS) GetItem(_ context.Context, remotePath string) (*Item, error) {
	full, err := s.fullPath(remotePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, classifyFSError(fmt.Errorf("remote: stat %q: %w", remotePath, err))
	}

	item := itemFromInfo(info)

	return &item, nil
}

// Download copies the stored file to destination atomically.
func (s *LocalFS) Download(ctx context.Context, remotePath, destination string) error {
	full, err := s.fullPath(remotePath)
	if err != nil {
		return err
	}

	src, err := os.Open(full)
	if err != nil {
		return classifyFSError(fmt.Errorf("remote: opening %q: %w", remotePath, err))
	}
	defer src.Close()

	err = writeFileAtomic(destination, func(w io.Writer) error {
		if _, copyErr := io.Copy(s.limiter.WrapWriter(ctx, w), src); copyErr != nil {
			return fmt.Errorf("remote: copying %q: %w", remotePath, copyErr)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("downloaded", slog.String("path", remotePath), slog.String("dest", destination))

	return nil
}

// Upload copies source into the store, creating parent folders.
func (s *LocalFS) Upload(ctx context.Context, source, remotePath string) error {
	full, err := s.fullPath(remotePath)
	if err != nil {
		return err
	}

	src, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("remote: opening upload source %s: %w", source, err)
	}
	defer src.Close()

	err = writeFileAtomic(full, func(w io.Writer) error {
		if _, copyErr := io.Copy(w, s.limiter.WrapReader(ctx, src)); copyErr != nil {
			return fmt.Errorf("remote: writing %q: %w", remotePath, copyErr)
		}

		return nil
	})
	if err != nil {
		return classifyFSError(err)
	}

	s.logger.Debug("uploaded", slog.String("path", remotePath), slog.String("source", source))

	return nil
}

// Delete removes a file or folder; absence is not an error.
func (s *LocalFS) Delete(_ context.Context, remotePath string) error {
	full, err := s.fullPath(remotePath)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classifyFSError(fmt.Errorf("remote: deleting %q: %w", remotePath, err))
	}

	return nil
}

// Close is a no-op.
func (s *LocalFS) Close() error {
	return nil
}

// TranslateError renders err for the user.
func (s *LocalFS) TranslateError(err error) string {
	return TranslateError("the local sync folder", err)
}

// fullPath maps a remote path into the root folder, refusing paths that
// would escape it.
func (s *LocalFS) fullPath(remotePath string) (string, error) {
	root := filepath.Join(s.base, s.rootFolder)
	full := filepath.Join(root, filepath.FromSlash(remotePath))

	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("remote: path %q escapes the root folder", remotePath)
	}

	return full, nil
}

func itemFromInfo(info fs.FileInfo) Item {
	mtime := info.ModTime().Unix()

	return Item{
		Name:         info.Name(),
		LastModified: &mtime,
		IsFolder:     info.IsDir(),
		Size:         info.Size(),
	}
}

// classifyFSError tags filesystem errors with the remote sentinels.
func classifyFSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	case errors.Is(err, syscall.ENOSPC):
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	default:
		return err
	}
}
