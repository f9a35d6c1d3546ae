package remote

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flashsync/internal/graph"
)

// fakeTokens counts refreshes; it never talks to an identity provider.
type fakeTokens struct {
	refreshes atomic.Int32
}

func (f *fakeTokens) Token() (string, error) { return "tok", nil }

func (f *fakeTokens) Refresh(context.Context) error {
	f.refreshes.Add(1)
	return nil
}

func newTestOneDrive(t *testing.T, handler http.HandlerFunc) (*OneDrive, *fakeTokens) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &fakeTokens{}
	s := NewOneDrive(OneDriveConfig{
		TokenPath:  "unused",
		RootFolder: "flashsync",
		BaseURL:    srv.URL,
		Logger:     testLogger(t),
		LoadTokens: func(string, *slog.Logger) (TokenSource, error) { return tokens, nil },
	})
	s.Init()

	return s, tokens
}

func TestOneDrive_AuthenticateLoadsThenRefreshes(t *testing.T) {
	s, tokens := newTestOneDrive(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"d"}`))
	})

	require.NoError(t, s.Authenticate(context.Background()))
	assert.Zero(t, tokens.refreshes.Load())

	require.NoError(t, s.Authenticate(context.Background()))
	assert.Equal(t, int32(1), tokens.refreshes.Load())
}

func TestOneDrive_AuthenticateNotLoggedIn(t *testing.T) {
	s := NewOneDrive(OneDriveConfig{
		TokenPath:  filepath.Join(t.TempDir(), "missing.json"),
		RootFolder: "flashsync",
		Logger:     testLogger(t),
	})

	err := s.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, graph.ErrNotLoggedIn)
}

func TestOneDrive_AlwaysUnauthorizedRetriesOnce(t *testing.T) {
	var contentHits atomic.Int32

	s, tokens := newTestOneDrive(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/drive" {
			_, _ = w.Write([]byte(`{"id":"d"}`))
			return
		}

		contentHits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	ctx := context.Background()
	require.NoError(t, s.Authenticate(ctx))

	_, err := s.GetItem(ctx, "collection.db")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, int32(2), contentHits.Load())
	assert.Equal(t, int32(1), tokens.refreshes.Load())
}

func TestOneDrive_ClassifiesErrors(t *testing.T) {
	s, _ := newTestOneDrive(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/me/drive":
			_, _ = w.Write([]byte(`{"id":"d"}`))
		case strings.Contains(r.URL.Path, "full"):
			w.WriteHeader(http.StatusInsufficientStorage)
		case strings.Contains(r.URL.Path, "secret"):
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	require.NoError(t, s.Authenticate(ctx))

	_, err := s.GetItem(ctx, "full.db")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	_, err = s.GetItem(ctx, "secret.db")
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = s.GetItem(ctx, "missing.db")
	assert.ErrorIs(t, err, ErrNotFound)

	item, err := s.TryGetItem(ctx, "missing.db", "")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestOneDrive_DeleteMissingSucceeds(t *testing.T) {
	s, _ := newTestOneDrive(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/drive" {
			_, _ = w.Write([]byte(`{"id":"d"}`))
			return
		}

		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/me/drive/root:/flashsync/media/1/a.png:", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})

	ctx := context.Background()
	require.NoError(t, s.Authenticate(ctx))
	assert.NoError(t, s.Delete(ctx, "media/1/a.png"))
}

func TestOneDrive_EnsureRootFolderCreatesOnce(t *testing.T) {
	var creates atomic.Int32

	s, _ := newTestOneDrive(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/me/drive":
			_, _ = w.Write([]byte(`{"id":"d"}`))
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/me/drive/root/children":
			creates.Add(1)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"f","name":"flashsync","folder":{}}`))
		}
	})

	ctx := context.Background()
	require.NoError(t, s.Authenticate(ctx))
	require.NoError(t, s.EnsureRootFolder(ctx))
	require.NoError(t, s.EnsureRootFolder(ctx))
	assert.Equal(t, int32(1), creates.Load())
}

func TestOneDrive_UploadAndDownload(t *testing.T) {
	var stored []byte

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/me/drive":
			_, _ = w.Write([]byte(`{"id":"d"}`))
		case r.Method == http.MethodPut:
			assert.Equal(t, "/me/drive/root:/flashsync/collection.db:/content", r.URL.Path)
			stored, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/blob":
			_, _ = w.Write(stored)
		default:
			_, _ = w.Write([]byte(`{"id":"1","name":"collection.db","size":4,"file":{},
				"@microsoft.graph.downloadUrl":"` + srv.URL + `/blob"}`))
		}
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	s := NewOneDrive(OneDriveConfig{
		RootFolder: "flashsync",
		BaseURL:    srv.URL,
		Logger:     testLogger(t),
		LoadTokens: func(string, *slog.Logger) (TokenSource, error) { return tokens, nil },
	})

	ctx := context.Background()
	require.NoError(t, s.Authenticate(ctx))

	src := filepath.Join(t.TempDir(), "c.db")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o600))
	require.NoError(t, s.Upload(ctx, src, "collection.db"))

	dest := filepath.Join(t.TempDir(), "down.db")
	require.NoError(t, s.Download(ctx, "collection.db", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}
