package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// chunkAlignment is the required alignment for upload chunk sizes (320 KiB).
const chunkAlignment = 320 * 1024

// uploadChunkSize is the session chunk size: 32 × 320 KiB = 10 MiB.
const uploadChunkSize = 32 * chunkAlignment

// simpleUploadMaxSize is the largest file sent with a single PUT (4 MB).
const simpleUploadMaxSize = 4 * 1024 * 1024

type createUploadSessionRequest struct {
	Item struct {
		ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph annotation key
	} `json:"item"`
}

type uploadSessionResponse struct {
	UploadURL string `json:"uploadUrl"`
}

// WrapFunc decorates the request body of each upload request, for example
// to throttle it. Nil means no decoration.
type WrapFunc func(io.Reader) io.Reader

// UploadByPath uploads size bytes from content to remotePath, replacing any
// existing file. Missing parent folders are created by the service. Files up
// to 4 MB go in one PUT; larger ones use a resumable upload session.
func (c *Client) UploadByPath(
	ctx context.Context, remotePath string, content io.ReaderAt, size int64, wrap WrapFunc,
) error {
	if wrap == nil {
		wrap = func(r io.Reader) io.Reader { return r }
	}

	c.logger.Info("uploading",
		slog.String("path", remotePath),
		slog.Int64("size", size),
	)

	if size <= simpleUploadMaxSize {
		return c.simpleUpload(ctx, remotePath, wrap(io.NewSectionReader(content, 0, size)), size)
	}

	return c.sessionUpload(ctx, remotePath, content, size, wrap)
}

// simpleUpload sends the whole file in one authenticated PUT. It is not
// retried: the body reader cannot be rewound.
func (c *Client) simpleUpload(ctx context.Context, remotePath string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+itemPath(remotePath)+"/content", body)
	if err != nil {
		return fmt.Errorf("graph: creating upload request: %w", err)
	}

	if err := c.authorize(req); err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = size

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph: upload request failed: %w", err)
	}
	defer resp.Body.Close()

	return drainOrError(resp)
}

// sessionUpload creates an upload session and sends aligned chunks to its
// pre-authenticated URL. The session is canceled on failure.
func (c *Client) sessionUpload(
	ctx context.Context, remotePath string, content io.ReaderAt, size int64, wrap WrapFunc,
) error {
	var reqBody createUploadSessionRequest
	reqBody.Item.ConflictBehavior = "replace"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("graph: marshaling upload session request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, itemPath(remotePath)+"/createUploadSession", body)
	if err != nil {
		return err
	}

	var session uploadSessionResponse
	decErr := json.NewDecoder(resp.Body).Decode(&session)
	resp.Body.Close()

	if decErr != nil {
		return fmt.Errorf("graph: decoding upload session response: %w", decErr)
	}

	for offset := int64(0); offset < size; offset += uploadChunkSize {
		length := min(uploadChunkSize, size-offset)
		chunk := wrap(io.NewSectionReader(content, offset, length))

		if err := c.uploadChunk(ctx, session.UploadURL, chunk, offset, length, size); err != nil {
			c.cancelSession(session.UploadURL)
			return err
		}
	}

	return nil
}

func (c *Client) uploadChunk(ctx context.Context, uploadURL string, chunk io.Reader, offset, length, total int64) error {
	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", total),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, chunk)
	if err != nil {
		return fmt.Errorf("graph: creating chunk request: %w", err)
	}

	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)
	req.ContentLength = length

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph: chunk upload request failed: %w", err)
	}
	defer resp.Body.Close()

	return drainOrError(resp)
}

// cancelSession deletes an upload session, best effort.
func (c *Client) cancelSession(uploadURL string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, uploadURL, http.NoBody)
	if err != nil {
		return
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("canceling upload session failed", slog.String("error", err.Error()))
		return
	}

	resp.Body.Close()
}

// drainOrError discards a 2xx body or converts a failure into a GraphError.
func drainOrError(resp *http.Response) error {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
		return newGraphError(resp, body)
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("graph: draining response body: %w", err)
	}

	return nil
}
