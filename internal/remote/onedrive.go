package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/tonimelisma/flashsync/internal/graph"
)

// TokenSource is what the OneDrive backend needs from a credential holder:
// bearer tokens on demand plus a forced refresh after a rejected token.
type TokenSource interface {
	Token() (string, error)
	Refresh(ctx context.Context) error
}

// OneDriveConfig configures a OneDrive store.
type OneDriveConfig struct {
	TokenPath  string
	RootFolder string

	// BaseURL defaults to graph.DefaultBaseURL.
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *Limiter
	Logger     *slog.Logger

	// LoadTokens loads saved credentials. Defaults to graph.TokenSourceFromPath.
	LoadTokens func(tokenPath string, logger *slog.Logger) (TokenSource, error)
}

// OneDrive is a Store backed by the signed-in user's OneDrive, with all
// paths living under an application root folder in the drive root.
type OneDrive struct {
	cfg    OneDriveConfig
	logger *slog.Logger

	tokens    TokenSource
	client    *graph.Client
	rootReady bool
}

// NewOneDrive creates an unauthenticated OneDrive store.
func NewOneDrive(cfg OneDriveConfig) *OneDrive {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = graph.DefaultBaseURL
	}

	if cfg.LoadTokens == nil {
		cfg.LoadTokens = func(path string, logger *slog.Logger) (TokenSource, error) {
			return graph.TokenSourceFromPath(path, logger)
		}
	}

	return &OneDrive{cfg: cfg, logger: cfg.Logger}
}

// Init drops the client and cached credentials; the next Authenticate
// reloads them from disk.
func (s *OneDrive) Init() {
	s.tokens = nil
	s.client = nil
	s.rootReady = false
}

// Authenticate loads saved tokens on first use and forces a refresh on every
// later call, then validates the session against the drive endpoint.
func (s *OneDrive) Authenticate(ctx context.Context) error {
	if s.tokens == nil {
		tokens, err := s.cfg.LoadTokens(s.cfg.TokenPath, s.logger)
		if err != nil {
			return fmt.Errorf("%w: loading saved sign-in: %w", ErrAuthentication, err)
		}

		s.tokens = tokens
		s.client = graph.NewClient(s.cfg.BaseURL, s.cfg.HTTPClient, tokens, s.logger)
	} else if err := s.tokens.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	if err := s.client.Me(ctx); err != nil {
		return classifyGraphError(err)
	}

	s.logger.Debug("onedrive session validated")

	return nil
}

// EnsureRootFolder creates the application folder under the drive root once
// per process.
func (s *OneDrive) EnsureRootFolder(ctx context.Context) error {
	if s.rootReady {
		return nil
	}

	err := s.withAuth(ctx, "ensure-root", s.cfg.RootFolder, func(c *graph.Client) error {
		_, getErr := c.GetItemByPath(ctx, s.cfg.RootFolder)
		if errors.Is(getErr, graph.ErrNotFound) {
			return c.CreateFolder(ctx, "", s.cfg.RootFolder)
		}

		return getErr
	})
	if err != nil {
		return err
	}

	s.rootReady = true

	return nil
}

// ListChildren lists a folder below the root folder.
func (s *OneDrive) ListChildren(ctx context.Context, folder string) ([]Item, error) {
	var items []Item

	err := s.withAuth(ctx, "list", folder, func(c *graph.Client) error {
		children, err := c.ListChildrenByPath(ctx, s.full(folder))
		if err != nil {
			return err
		}

		items = make([]Item, 0, len(children))
		for i := range children {
			items = append(items, itemFromGraph(&children[i]))
		}

		return nil
	})

	return items, err
}

// TryGetItem looks up folder/name and reports absence as (nil, nil).
func (s *OneDrive) TryGetItem(ctx context.Context, name, folder string) (*Item, error) {
	item, err := s.GetItem(ctx, Join(folder, name))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}

	return item, err
}

// GetItem fetches item metadata by path.
func (s *OneDrive) GetItem(ctx context.Context, remotePath string) (*Item, error) {
	var item *Item

	err := s.withAuth(ctx, "get", remotePath, func(c *graph.Client) error {
		gi, err := c.GetItemByPath(ctx, s.full(remotePath))
		if err != nil {
			return err
		}

		converted := itemFromGraph(gi)
		item = &converted

		return nil
	})

	return item, err
}

// Download streams the file into destination through a temp file.
func (s *OneDrive) Download(ctx context.Context, remotePath, destination string) error {
	return s.withAuth(ctx, "download", remotePath, func(c *graph.Client) error {
		return writeFileAtomic(destination, func(w io.Writer) error {
			_, err := c.DownloadByPath(ctx, s.full(remotePath), s.cfg.Limiter.WrapWriter(ctx, w))
			return err
		})
	})
}

// Upload sends source to remotePath, replacing any existing file. OneDrive
// creates missing parent folders for path-addressed uploads.
func (s *OneDrive) Upload(ctx context.Context, source, remotePath string) error {
	f, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("remote: opening upload source %s: %w", source, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("remote: stat upload source %s: %w", source, err)
	}

	wrap := func(r io.Reader) io.Reader { return s.cfg.Limiter.WrapReader(ctx, r) }

	return s.withAuth(ctx, "upload", remotePath, func(c *graph.Client) error {
		return c.UploadByPath(ctx, s.full(remotePath), f, info.Size(), wrap)
	})
}

// Delete removes a file. An absent file is treated as already deleted.
func (s *OneDrive) Delete(ctx context.Context, remotePath string) error {
	err := s.withAuth(ctx, "delete", remotePath, func(c *graph.Client) error {
		return c.DeleteByPath(ctx, s.full(remotePath))
	})
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("delete: already absent", slog.String("path", remotePath))
		return nil
	}

	return err
}

// Close drops the client. The token file stays on disk.
func (s *OneDrive) Close() error {
	s.tokens = nil
	s.client = nil

	return nil
}

// TranslateError renders err for the user.
func (s *OneDrive) TranslateError(err error) string {
	return TranslateError("OneDrive", err)
}

// withAuth runs op with the current client under the single re-auth retry
// policy, classifying Graph errors into remote sentinels.
func (s *OneDrive) withAuth(ctx context.Context, opName, remotePath string, op func(c *graph.Client) error) error {
	return retryOnAuth(ctx, s.Authenticate, s.logger, opName, remotePath, func() error {
		if s.client == nil {
			return fmt.Errorf("%w: not signed in", ErrAuthentication)
		}

		return classifyGraphError(op(s.client))
	})
}

func (s *OneDrive) full(remotePath string) string {
	return Join(s.cfg.RootFolder, remotePath)
}

func itemFromGraph(gi *graph.Item) Item {
	item := Item{
		Name:     gi.Name,
		IsFolder: gi.IsFolder,
		Size:     gi.Size,
	}

	if !gi.ModifiedAt.IsZero() {
		mtime := gi.ModifiedAt.Unix()
		item.LastModified = &mtime
	}

	return item
}

// classifyGraphError tags Graph failures with the remote sentinels.
func classifyGraphError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAccessDenied), errors.Is(err, ErrQuotaExceeded):
		return err
	case errors.Is(err, graph.ErrUnauthorized), errors.Is(err, graph.ErrNotLoggedIn):
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	case errors.Is(err, graph.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, graph.ErrForbidden):
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	case errors.Is(err, graph.ErrInsufficientStorage):
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	default:
		return err
	}
}
