package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/flashsync/internal/tokenfile"
)

// Azure AD application registered for flashsync (public client, multi-tenant + personal).
const defaultClientID = "8efac532-bbe7-4bc5-919c-1443ccab860a"

var defaultScopes = []string{
	"offline_access",
	"Files.ReadWrite",
	"User.Read",
}

// DeviceAuth holds the device code fields the CLI shows to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Login runs the device code flow: it requests a code, hands it to display,
// polls until the user authorizes, and saves the token at tokenPath.
func Login(ctx context.Context, tokenPath string, display func(DeviceAuth), logger *slog.Logger) (*PersistentTokenSource, error) {
	return doLogin(ctx, tokenPath, oauthConfig(), display, logger)
}

func doLogin(
	ctx context.Context,
	tokenPath string,
	cfg *oauth2.Config,
	display func(DeviceAuth),
	logger *slog.Logger,
) (*PersistentTokenSource, error) {
	logger.Info("starting device code auth flow", slog.String("path", tokenPath))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: device auth request failed: %w", err)
	}

	display(DeviceAuth{UserCode: da.UserCode, VerificationURI: da.VerificationURI})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("graph: device code authorization failed: %w", err)
	}

	if err := tokenfile.Save(tokenPath, tok); err != nil {
		return nil, fmt.Errorf("graph: saving token: %w", err)
	}

	logger.Info("login successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return newPersistentTokenSource(cfg, tokenPath, tok, logger), nil
}

// TokenSourceFromPath loads the saved token at tokenPath. Returns
// ErrNotLoggedIn if there is none.
func TokenSourceFromPath(tokenPath string, logger *slog.Logger) (*PersistentTokenSource, error) {
	return tokenSourceFromPath(oauthConfig(), tokenPath, logger)
}

func tokenSourceFromPath(cfg *oauth2.Config, tokenPath string, logger *slog.Logger) (*PersistentTokenSource, error) {
	tf, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tf == nil {
		return nil, ErrNotLoggedIn
	}

	logger.Info("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tf.Token.Expiry),
		slog.Bool("expired", !tf.Token.Expiry.IsZero() && tf.Token.Expiry.Before(time.Now())),
	)

	return newPersistentTokenSource(cfg, tokenPath, tf.Token, logger), nil
}

// Logout removes the saved token.
func Logout(tokenPath string, logger *slog.Logger) error {
	if err := tokenfile.Remove(tokenPath); err != nil {
		return err
	}

	logger.Info("logout: token removed", slog.String("path", tokenPath))

	return nil
}

func oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: defaultClientID,
		Scopes:   defaultScopes,
		Endpoint: microsoft.AzureADEndpoint("common"),
	}
}

// PersistentTokenSource hands out access tokens, refreshing them when they
// expire or when Refresh is called, and writes every new token to disk.
type PersistentTokenSource struct {
	mu     sync.Mutex
	cfg    *oauth2.Config
	path   string
	tok    *oauth2.Token
	logger *slog.Logger
}

func newPersistentTokenSource(cfg *oauth2.Config, path string, tok *oauth2.Token, logger *slog.Logger) *PersistentTokenSource {
	return &PersistentTokenSource{cfg: cfg, path: path, tok: tok, logger: logger}
}

// Token returns a valid access token, refreshing it if it has expired.
func (s *PersistentTokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok.Valid() {
		return s.tok.AccessToken, nil
	}

	if err := s.refreshLocked(context.Background()); err != nil {
		return "", err
	}

	return s.tok.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token even if the
// current one has not expired. Used to recover from a rejected token.
func (s *PersistentTokenSource) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refreshLocked(ctx)
}

func (s *PersistentTokenSource) refreshLocked(ctx context.Context) error {
	// An empty access token forces the oauth2 package to use the refresh token.
	stale := &oauth2.Token{RefreshToken: s.tok.RefreshToken}

	tok, err := s.cfg.TokenSource(ctx, stale).Token()
	if err != nil {
		s.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		return fmt.Errorf("%w: refreshing token: %w", ErrUnauthorized, err)
	}

	s.tok = tok

	if err := tokenfile.Save(s.path, tok); err != nil {
		s.logger.Warn("failed to persist refreshed token",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("persisted refreshed token",
			slog.String("path", s.path),
			slog.Time("expiry", tok.Expiry),
		)
	}

	return nil
}
