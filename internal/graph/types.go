package graph

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Item is a OneDrive drive item normalized from the Graph response.
type Item struct {
	ID          string
	Name        string
	Size        int64
	IsFolder    bool
	ModifiedAt  time.Time
	DownloadURL string // pre-authenticated and ephemeral; never log it

	// QuickXorHash is the base64 content hash; empty when Graph reports none.
	QuickXorHash string
}

// driveItemResponse mirrors the subset of the driveItem JSON we read.
type driveItemResponse struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime"`
	Folder               *json.RawMessage `json:"folder"`
	DownloadURL          string           `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph annotation key
	File                 *fileFacet       `json:"file"`
}

type fileFacet struct {
	Hashes struct {
		QuickXorHash string `json:"quickXorHash"`
	} `json:"hashes"`
}

type listChildrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Inner   *struct {
			Code string `json:"code"`
		} `json:"innerError"`
	} `json:"error"`
}

// toItem normalizes a driveItem. An unparsable timestamp becomes the zero
// time and is logged; callers treat zero as "unknown".
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:          d.ID,
		Name:        d.Name,
		Size:        d.Size,
		IsFolder:    d.Folder != nil,
		DownloadURL: d.DownloadURL,
	}

	if d.File != nil {
		item.QuickXorHash = d.File.Hashes.QuickXorHash
	}

	if d.LastModifiedDateTime != "" {
		t, err := time.Parse(time.RFC3339, d.LastModifiedDateTime)
		if err != nil {
			logger.Warn("invalid lastModifiedDateTime",
				slog.String("item_id", d.ID),
				slog.String("raw", d.LastModifiedDateTime),
			)
		} else {
			item.ModifiedAt = t.UTC()
		}
	}

	return item
}

// containsCode reports whether a Graph error body carries code at the top
// level or in the inner error.
func containsCode(body []byte, code string) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return false
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}

	if env.Error.Code == code {
		return true
	}

	return env.Error.Inner != nil && env.Error.Inner.Code == code
}

// encodePathSegments URL-encodes each segment of a slash-separated path.
func encodePathSegments(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// itemPath returns the API path addressing remotePath under the drive root.
// The empty path addresses the root itself.
func itemPath(remotePath string) string {
	remotePath = strings.Trim(remotePath, "/")
	if remotePath == "" {
		return "/me/drive/root"
	}

	return "/me/drive/root:/" + encodePathSegments(remotePath) + ":"
}
