package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// listChildrenPageSize is the $top value for children requests, the Graph
// maximum for drive item collections.
const listChildrenPageSize = 200

type createFolderRequest struct {
	Name             string   `json:"name"`
	Folder           struct{} `json:"folder"`
	ConflictBehavior string   `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph annotation key
}

// Me validates the token by fetching the signed-in user's default drive.
func (c *Client) Me(ctx context.Context) error {
	resp, err := c.Do(ctx, http.MethodGet, "/me/drive", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("graph: draining drive response: %w", err)
	}

	return nil
}

// GetItemByPath retrieves a drive item by its path relative to the drive root.
func (c *Client) GetItemByPath(ctx context.Context, remotePath string) (*Item, error) {
	c.logger.Debug("getting item by path", slog.String("path", remotePath))

	resp, err := c.Do(ctx, http.MethodGet, itemPath(remotePath), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding item response: %w", err)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// ListChildrenByPath returns all children of a folder, following nextLink
// pagination.
func (c *Client) ListChildrenByPath(ctx context.Context, remotePath string) ([]Item, error) {
	apiPath := fmt.Sprintf("%s/children?$top=%d", itemPath(remotePath), listChildrenPageSize)

	var items []Item

	for page := 1; apiPath != ""; page++ {
		pageItems, next, err := c.listChildrenPage(ctx, apiPath)
		if err != nil {
			return nil, err
		}

		c.logger.Debug("fetched children page",
			slog.String("path", remotePath),
			slog.Int("page", page),
			slog.Int("count", len(pageItems)),
		)

		items = append(items, pageItems...)
		apiPath = next
	}

	return items, nil
}

func (c *Client) listChildrenPage(ctx context.Context, apiPath string) ([]Item, string, error) {
	resp, err := c.Do(ctx, http.MethodGet, apiPath, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lcr); err != nil {
		return nil, "", fmt.Errorf("graph: decoding children response: %w", err)
	}

	items := make([]Item, 0, len(lcr.Value))
	for i := range lcr.Value {
		items = append(items, lcr.Value[i].toItem(c.logger))
	}

	if lcr.NextLink == "" {
		return items, "", nil
	}

	if !strings.HasPrefix(lcr.NextLink, c.baseURL) {
		return nil, "", fmt.Errorf("graph: nextLink %q does not match base URL %q", lcr.NextLink, c.baseURL)
	}

	return items, lcr.NextLink[len(c.baseURL):], nil
}

// CreateFolder creates name under parentPath. An existing folder of the same
// name is not an error.
func (c *Client) CreateFolder(ctx context.Context, parentPath, name string) error {
	c.logger.Info("creating folder",
		slog.String("parent", parentPath),
		slog.String("name", name),
	)

	body, err := json.Marshal(createFolderRequest{Name: name, ConflictBehavior: "fail"})
	if err != nil {
		return fmt.Errorf("graph: marshaling create folder request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, itemPath(parentPath)+"/children", body)
	if errors.Is(err, ErrConflict) {
		c.logger.Debug("folder already exists", slog.String("name", name))
		return nil
	}

	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("graph: draining create folder response: %w", err)
	}

	return nil
}

// DeleteByPath deletes a drive item. A missing item surfaces as ErrNotFound;
// the caller decides whether that matters.
func (c *Client) DeleteByPath(ctx context.Context, remotePath string) error {
	c.logger.Info("deleting item", slog.String("path", remotePath))

	resp, err := c.Do(ctx, http.MethodDelete, itemPath(remotePath), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("graph: draining delete response: %w", err)
	}

	return nil
}
