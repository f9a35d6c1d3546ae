package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// interruptedExitCode is what a forced quit exits with (128 + SIGINT).
const interruptedExitCode = 130

// shutdownContext returns a context canceled by the first SIGINT or SIGTERM.
// A sync pass seeing the cancellation stops transferring and still runs its
// cleanup stage, keeping the media sync log so the next run resumes. A second
// signal exits at once.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		var sig os.Signal

		select {
		case sig = <-sigCh:
		case <-ctx.Done():
			return
		}

		logger.Info("stopping sync after cleanup", slog.String("signal", sig.String()))
		statusf("Stopping; press Ctrl-C again to quit immediately.\n")
		cancel()

		select {
		case sig = <-sigCh:
		case <-parent.Done():
			return
		}

		logger.Warn("forced exit", slog.String("signal", sig.String()))
		fmt.Fprintln(os.Stderr, "Interrupted. Temporary files are cleared on the next sync.")
		os.Exit(interruptedExitCode)
	}()

	return ctx
}
