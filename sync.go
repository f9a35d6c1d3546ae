package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/flashsync/internal/metrics"
	"github.com/tonimelisma/flashsync/internal/sync"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the collection with the remote store",
		Long: `Run one full sync pass: the collection and deck images move in whichever
direction was synced last, then media files are reconciled one by one.

With --watch, a pass runs at start, whenever the collection file changes and
every poll_interval until interrupted.`,
		RunE: runSync,
	}

	cmd.Flags().Bool("watch", false, "keep running and sync on changes")
	cmd.Flags().Bool("no-media", false, "skip the media stage for this run")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}

	noMedia, err := cmd.Flags().GetBool("no-media")
	if err != nil {
		return err
	}

	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)
	sess := newSession(resolvedCfg, logger)
	if err := sess.ensureDirs(); err != nil {
		return err
	}

	store, err := newStore(resolvedCfg, logger)
	if err != nil {
		return err
	}

	reporter := newReporter(os.Stderr, logger)
	defer reporter.Close()

	recorder := metrics.New()

	fs := sync.NewFullSync(sync.Config{
		Store:       store,
		Collections: sess.collections,
		Layout:      sess.layout,
		SyncMedia:   resolvedCfg.SyncMedia && !noMedia,
		Reporter:    reporter,
		Notifier:    &logNotifier{logger: logger},
		Confirmer:   newPromptConfirmer(os.Stdin, os.Stderr),
		Metrics:     recorder,
		Logger:      logger,
		Lock:        sess.dataLock,
	})

	if watch {
		return runWatch(ctx, fs, recorder, logger)
	}

	report, err := fs.Run(ctx)
	if err != nil {
		return describeSyncError(err)
	}

	printReport(os.Stdout, report)

	return nil
}

func runWatch(ctx context.Context, fs *sync.FullSync, recorder *metrics.Recorder, logger *slog.Logger) error {
	lock, err := acquireWatchLock(resolvedCfg.DataDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	poll, err := resolvedCfg.PollDuration()
	if err != nil {
		return fmt.Errorf("poll_interval: %w", err)
	}

	logger.Info("watch mode started",
		slog.String("backend", resolvedCfg.Backend),
		slog.Duration("poll_interval", poll),
	)

	return sync.Watch(ctx, fs, sync.WatchOptions{
		PollInterval: poll,
		MetricsAddr:  resolvedCfg.MetricsAddr,
		Metrics:      recorder,
	})
}

// describeSyncError turns a failed pass into the one line a user sees.
func describeSyncError(err error) error {
	var se *sync.StageError
	if errors.As(err, &se) && se.Message != "" {
		return fmt.Errorf("sync failed while %s: %s", strings.ReplaceAll(se.Stage.String(), "_", " "), se.Message)
	}

	return err
}

// printReport writes a short summary of a finished pass.
func printReport(w io.Writer, r *sync.Report) {
	fmt.Fprintf(w, "Collection %sed in %s.\n", r.Direction, r.Duration.Round(time.Millisecond))

	m := r.Media
	if m == nil {
		return
	}

	switch {
	case m.FirstSync:
		fmt.Fprintln(w, "First media sync: remote index created.")
	case m.ForcedUpload:
		fmt.Fprintln(w, "Remote media index was rebuilt from local media.")
	}

	fmt.Fprintf(w, "Media: %s downloaded, %s uploaded, %s deleted locally, %s deleted remotely.\n",
		humanize.Comma(int64(m.Downloaded)),
		humanize.Comma(int64(m.Uploaded)),
		humanize.Comma(int64(m.DeletedLocal)),
		humanize.Comma(int64(m.DeletedRemote)),
	)

	if n := len(m.Conflicts); n > 0 {
		fmt.Fprintf(w, "%d conflicting %s resolved in favor of the remote.\n", n, plural(n, "change", "changes"))
	}

	if n := len(m.OutOfSync); n > 0 {
		fmt.Fprintf(w, "%d media %s left out of sync.\n", n, plural(n, "file", "files"))
	}

	if n := len(m.SkippedFiles); n > 0 {
		fmt.Fprintf(w, "%d media %s failed and will be retried:\n", n, plural(n, "file", "files"))

		for _, p := range m.SkippedFiles {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}

// logNotifier logs local changes made by a pass.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) CollectionReplaced() {
	n.logger.Info("collection replaced by remote copy")
}

func (n *logNotifier) DeckImageChanged(deckID int64, imagePath string, modified int64) {
	if imagePath == "" {
		n.logger.Info("deck image reverted to default", slog.Int64("deck_id", deckID))
		return
	}

	n.logger.Info("deck image updated",
		slog.Int64("deck_id", deckID),
		slog.String("path", imagePath),
		slog.Int64("modified", modified),
	)
}

// promptConfirmer asks on the terminal. Without a terminal it declines.
type promptConfirmer struct {
	in          io.Reader
	out         io.Writer
	interactive bool
}

func newPromptConfirmer(in *os.File, out io.Writer) *promptConfirmer {
	return &promptConfirmer{
		in:          in,
		out:         out,
		interactive: isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd()),
	}
}

func (c *promptConfirmer) ConfirmForceMediaUpload(ctx context.Context) bool {
	if !c.interactive || ctx.Err() != nil {
		return false
	}

	fmt.Fprint(c.out, "The media index on the remote is damaged. "+
		"Upload all local media and replace it? [y/N] ")

	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
