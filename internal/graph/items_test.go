package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemPath(t *testing.T) {
	assert.Equal(t, "/me/drive/root", itemPath(""))
	assert.Equal(t, "/me/drive/root", itemPath("/"))
	assert.Equal(t, "/me/drive/root:/flashsync/media/7/a%20b.png:", itemPath("flashsync/media/7/a b.png"))
}

func TestGetItemByPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive/root:/flashsync/collection.db:", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "item-1",
			"name": "collection.db",
			"size": 42,
			"lastModifiedDateTime": "2024-03-01T10:00:00Z",
			"file": {}
		}`))
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv.URL).GetItemByPath(context.Background(), "flashsync/collection.db")
	require.NoError(t, err)
	assert.Equal(t, "collection.db", item.Name)
	assert.Equal(t, int64(42), item.Size)
	assert.False(t, item.IsFolder)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), item.ModifiedAt)
}

func TestGetItemByPath_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).GetItemByPath(context.Background(), "flashsync/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetItemByPath_InvalidTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1","name":"x","lastModifiedDateTime":"yesterday","folder":{}}`))
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv.URL).GetItemByPath(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, item.IsFolder)
	assert.True(t, item.ModifiedAt.IsZero())
}

func TestListChildrenByPath_Pagination(t *testing.T) {
	var srv *httptest.Server

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"value":[{"id":"c","name":"3.png","file":{}}]}`))
			return
		}

		assert.Equal(t, "/me/drive/root:/flashsync/deck-images:/children", r.URL.Path)
		assert.Equal(t, "200", r.URL.Query().Get("$top"))
		fmt.Fprintf(w, `{"value":[{"id":"a","name":"1.png","file":{}},{"id":"b","name":"2.png","file":{}}],
			"@odata.nextLink":%q}`, srv.URL+"/me/drive/root:/flashsync/deck-images:/children?page=2")
	}))
	defer srv.Close()

	items, err := newTestClient(t, srv.URL).ListChildrenByPath(context.Background(), "flashsync/deck-images")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "3.png", items[2].Name)
}

func TestListChildrenByPath_ForeignNextLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[],"@odata.nextLink":"https://evil.example/next"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ListChildrenByPath(context.Background(), "flashsync")
	assert.ErrorContains(t, err, "does not match base URL")
}

func TestCreateFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/me/drive/root/children", r.URL.Path)

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "flashsync", req["name"])
		assert.Equal(t, "fail", req["@microsoft.graph.conflictBehavior"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"f","name":"flashsync","folder":{}}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv.URL).CreateFolder(context.Background(), "", "flashsync"))
}

func TestCreateFolder_AlreadyExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"nameAlreadyExists"}}`))
	}))
	defer srv.Close()

	assert.NoError(t, newTestClient(t, srv.URL).CreateFolder(context.Background(), "", "flashsync"))
}

func TestDeleteByPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/me/drive/root:/flashsync/media/1/a.png:", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv.URL).DeleteByPath(context.Background(), "flashsync/media/1/a.png"))
}

func TestDeleteByPath_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).DeleteByPath(context.Background(), "flashsync/gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"drive"}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv.URL).Me(context.Background()))
}
