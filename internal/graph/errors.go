// Package graph is a small Microsoft Graph client for the OneDrive backend:
// path-addressed item lookup, folder creation, content download and upload,
// device-code login and persisted OAuth2 tokens. Requests are retried with
// exponential backoff on throttling and server errors; 401 is never retried
// here because the caller owns the re-authentication policy.
package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest          = errors.New("graph: bad request")
	ErrUnauthorized        = errors.New("graph: unauthorized")
	ErrForbidden           = errors.New("graph: forbidden")
	ErrNotFound            = errors.New("graph: not found")
	ErrConflict            = errors.New("graph: conflict")
	ErrThrottled           = errors.New("graph: throttled")
	ErrInsufficientStorage = errors.New("graph: insufficient storage")
	ErrServerError         = errors.New("graph: server error")
	ErrNotLoggedIn         = errors.New("graph: not logged in")
)

// quotaLimitReached is the Graph error code OneDrive returns with 403/507
// when the drive is full.
const quotaLimitReached = "quotaLimitReached"

// GraphError wraps a sentinel error with the HTTP status code, request ID
// and the response body for debugging.
type GraphError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// newGraphError builds a GraphError from a non-2xx response body.
func newGraphError(resp *http.Response, body []byte) *GraphError {
	return &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode, body),
	}
}

// classifyStatus maps an HTTP status code to a sentinel error. A 403 whose
// body carries quotaLimitReached is a full drive, not a permission problem.
func classifyStatus(code int, body []byte) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if containsCode(body, quotaLimitReached) {
			return ErrInsufficientStorage
		}

		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusInsufficientStorage:
		return ErrInsufficientStorage
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
