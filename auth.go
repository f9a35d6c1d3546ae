package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/flashsync/internal/config"
	"github.com/tonimelisma/flashsync/internal/graph"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in to OneDrive with a device code",
		Long: `Sign in to OneDrive with a device code and save the token in the data
directory. The app folder is created on success, so the first sync has
nothing left to prepare.`,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved OneDrive token",
		RunE:  runLogout,
	}
}

var errNoLoginNeeded = errors.New("needs no login; credentials come from the config file")

// requireOneDrive rejects auth commands for backends with static credentials.
func requireOneDrive(cfg *config.Config) error {
	if cfg.Backend != config.BackendOneDrive {
		return fmt.Errorf("backend %q %w", cfg.Backend, errNoLoginNeeded)
	}

	return nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	if err := requireOneDrive(resolvedCfg); err != nil {
		return err
	}

	logger := buildLogger()
	tokenPath := resolvedCfg.TokenPath()

	if err := os.MkdirAll(resolvedCfg.DataDir, dataDirPermissions); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger.Info("login started", slog.String("token_path", tokenPath))

	_, err := graph.Login(cmd.Context(), tokenPath, func(da graph.DeviceAuth) {
		// Shown even with --quiet; the user cannot finish without it.
		fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", da.VerificationURI)
		fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)
	}, logger)
	if err != nil {
		return err
	}

	if err := prepareAppFolder(cmd.Context(), resolvedCfg, logger); err != nil {
		return err
	}

	logger.Info("login finished", slog.String("root_folder", resolvedCfg.RootFolder))
	statusf("Signed in. Cards sync to the %q app folder.\n", resolvedCfg.RootFolder)

	return nil
}

// prepareAppFolder checks the fresh token against the service and creates
// the root folder the sync pass expects.
func prepareAppFolder(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Authenticate(ctx); err != nil {
		return errors.New(store.TranslateError(err))
	}

	if err := store.EnsureRootFolder(ctx); err != nil {
		return errors.New(store.TranslateError(err))
	}

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	if err := requireOneDrive(resolvedCfg); err != nil {
		return err
	}

	logger := buildLogger()

	if err := graph.Logout(resolvedCfg.TokenPath(), logger); err != nil {
		return err
	}

	logger.Info("logout finished")
	statusf("Signed out. Remote cards are untouched.\n")

	return nil
}
