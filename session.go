package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tonimelisma/flashsync/internal/collection"
	"github.com/tonimelisma/flashsync/internal/config"
	"github.com/tonimelisma/flashsync/internal/datalock"
	"github.com/tonimelisma/flashsync/internal/remote"
	"github.com/tonimelisma/flashsync/internal/sync"
)

// responseHeaderTimeout bounds how long a request waits for response
// headers. Bodies are not bounded: collections and media files can be large.
const responseHeaderTimeout = 30 * time.Second

// session bundles what the local commands share: where things live and the
// collection manager guarding the collection file.
type session struct {
	cfg         *config.Config
	layout      sync.Layout
	collections *collection.Manager
	dataLock    *datalock.Locker
	logger      *slog.Logger
}

func newSession(cfg *config.Config, logger *slog.Logger) *session {
	layout := sync.NewLayout(cfg.DataDir, cfg.CollectionPath, cfg.TempDir)

	dataLock := datalock.New(cfg.DataDir, logger)
	dataLock.OnWait = func() {
		statusf("Waiting for another flashsync process to finish...\n")
	}

	return &session{
		cfg:         cfg,
		layout:      layout,
		collections: collection.NewManager(layout.CollectionPath, logger),
		dataLock:    dataLock,
		logger:      logger,
	}
}

// lockData waits for any sync pass or edit in another process, then holds
// the data directory until unlock is called.
func (s *session) lockData(ctx context.Context) (unlock func(), err error) {
	return s.dataLock.Lock(ctx)
}

// dataDirPermissions keeps the collection and media private to the user.
const dataDirPermissions = 0o700

// ensureDirs creates the data directory and the collection's folder.
func (s *session) ensureDirs() error {
	for _, dir := range []string{s.cfg.DataDir, filepath.Dir(s.layout.CollectionPath)} {
		if err := os.MkdirAll(dir, dataDirPermissions); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	return nil
}

// newStore builds the configured backend. The store is unauthenticated;
// the sync pass initializes it.
func newStore(cfg *config.Config, logger *slog.Logger) (remote.Store, error) {
	bps, err := cfg.BandwidthBytesPerSec()
	if err != nil {
		return nil, fmt.Errorf("bandwidth_limit: %w", err)
	}

	limiter := remote.NewLimiter(bps, logger)

	switch cfg.Backend {
	case config.BackendOneDrive:
		return remote.NewOneDrive(remote.OneDriveConfig{
			TokenPath:  cfg.TokenPath(),
			RootFolder: cfg.RootFolder,
			HTTPClient: defaultHTTPClient(),
			Limiter:    limiter,
			Logger:     logger,
		}), nil
	case config.BackendLocal:
		return remote.NewLocalFS(cfg.Local.Root, cfg.RootFolder, limiter, logger), nil
	case config.BackendS3:
		return remote.NewMinIO(remote.MinIOConfig{
			Endpoint:   cfg.S3.Endpoint,
			Bucket:     cfg.S3.Bucket,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Region:     cfg.S3.Region,
			UseSSL:     cfg.S3.UseSSL,
			RootFolder: cfg.RootFolder,
			Limiter:    limiter,
			Logger:     logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// defaultHTTPClient returns the HTTP client for the OneDrive backend.
func defaultHTTPClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = responseHeaderTimeout

	return &http.Client{Transport: tr}
}
