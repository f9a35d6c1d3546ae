package remote

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors every backend classifies its native failures into.
// Use errors.Is(err, remote.ErrNotFound) to check.
var (
	ErrAuthentication = errors.New("remote: authentication failed")
	ErrNotFound       = errors.New("remote: not found")
	ErrQuotaExceeded  = errors.New("remote: quota exceeded")
	ErrAccessDenied   = errors.New("remote: access denied")
)

// Category is the closed set of user-facing failure kinds.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryAuthentication
	CategoryNotFound
	CategoryQuotaExceeded
	CategoryAccessDenied
	CategoryCanceled
)

func (c Category) String() string {
	switch c {
	case CategoryAuthentication:
		return "authentication"
	case CategoryNotFound:
		return "not_found"
	case CategoryQuotaExceeded:
		return "quota_exceeded"
	case CategoryAccessDenied:
		return "access_denied"
	case CategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify maps an error chain onto a Category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrAuthentication):
		return CategoryAuthentication
	case errors.Is(err, ErrQuotaExceeded):
		return CategoryQuotaExceeded
	case errors.Is(err, ErrAccessDenied):
		return CategoryAccessDenied
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCanceled
	default:
		return CategoryUnknown
	}
}

// TranslateError renders err as one line for the user. backend is the
// display name of the store ("OneDrive", "S3 bucket", ...). Unclassified
// errors keep their text so nothing is hidden, but never a stack trace.
func TranslateError(backend string, err error) string {
	if err == nil {
		return ""
	}

	switch Classify(err) {
	case CategoryAuthentication:
		return fmt.Sprintf("Signing in to %s failed or the session expired. Sign in again and retry.", backend)
	case CategoryQuotaExceeded:
		return fmt.Sprintf("%s is out of storage space. Free up space and retry.", backend)
	case CategoryAccessDenied:
		return fmt.Sprintf("Access to %s was denied.", backend)
	case CategoryNotFound:
		return fmt.Sprintf("A file expected on %s could not be found.", backend)
	case CategoryCanceled:
		return "Sync was canceled."
	default:
		return fmt.Sprintf("Sync with %s failed: %v", backend, err)
	}
}
