package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// retryOnAuth runs op and, when it fails with ErrAuthentication, forces
// exactly one re-authentication followed by exactly one more attempt. The
// second outcome is returned as is, so an always-expired token costs two
// attempts and one re-authentication, never a loop.
func retryOnAuth(
	ctx context.Context,
	reauth func(context.Context) error,
	logger *slog.Logger,
	opName, remotePath string,
	op func() error,
) error {
	err := op()
	if err == nil || !errors.Is(err, ErrAuthentication) {
		return err
	}

	logger.Warn("access token rejected, re-authenticating once",
		slog.String("op", opName),
		slog.String("path", remotePath),
	)

	if authErr := reauth(ctx); authErr != nil {
		return fmt.Errorf("remote: re-authenticating for %s %s: %w", opName, remotePath, authErr)
	}

	return op()
}
