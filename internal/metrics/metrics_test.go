package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

func TestRecorder_Exposition(t *testing.T) {
	r := New()

	r.PassCompleted("upload", OutcomeSuccess, 2*time.Second, time.Unix(1700000000, 0))
	r.PassCompleted("", OutcomeFailure, time.Second, time.Unix(1700000100, 0))
	r.FileTransferred("download")
	r.FileTransferred("download")
	r.FileSkipped()

	body := scrape(t, r)

	assert.Contains(t, body, `flashsync_passes_total{direction="upload",outcome="success"} 1`)
	assert.Contains(t, body, `flashsync_passes_total{direction="none",outcome="failure"} 1`)
	assert.Contains(t, body, `flashsync_media_files_transferred_total{direction="download"} 2`)
	assert.Contains(t, body, "flashsync_media_files_skipped_total 1")
	assert.Contains(t, body, "flashsync_last_success_timestamp_seconds 1.7e+09")
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.PassCompleted("download", OutcomeSuccess, time.Second, time.Now())
		r.FileTransferred("upload")
		r.FileSkipped()
	})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
