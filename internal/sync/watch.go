package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/flashsync/internal/metrics"
)

// Backoff for consecutive failed passes in watch mode. Below the threshold
// the normal poll interval applies.
const (
	backoffThreshold = 3
	backoffMaxCap    = 1 * time.Hour
)

// backoffSteps maps consecutive failure counts (starting at the threshold)
// to their delays: 3→1m, 4→5m, 5→15m, 6+→1h.
var backoffSteps = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	backoffMaxCap,
}

// Watch defaults.
const (
	DefaultPollInterval = 5 * time.Minute
	defaultDebounce     = 2 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// PollInterval is the time between passes when nothing changes.
	PollInterval time.Duration
	// Debounce is how long the collection must stay quiet after a change
	// before a pass starts.
	Debounce time.Duration
	// MetricsAddr, when set, serves Metrics at /metrics on this address.
	MetricsAddr string
	Metrics     *metrics.Recorder
}

// backoffFor returns the extra delay after failures consecutive failed
// passes, or 0 below the threshold.
func backoffFor(failures int) time.Duration {
	if failures < backoffThreshold {
		return 0
	}

	idx := failures - backoffThreshold
	if idx >= len(backoffSteps) {
		return backoffMaxCap
	}

	return backoffSteps[idx]
}

// Watch runs a pass immediately, again whenever the collection file changes,
// and every poll interval. It returns nil when ctx is canceled.
func Watch(ctx context.Context, f *FullSync, opts WatchOptions) error {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}

	w := &watcher{
		sync:   f,
		opts:   opts,
		logger: f.logger,
		target: f.cfg.Layout.CollectionPath,
	}

	g, gctx := errgroup.WithContext(ctx)

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", opts.Metrics.Handler())

		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			w.logger.Info("serving metrics", slog.String("addr", opts.MetricsAddr))

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("sync: metrics server: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-gctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return srv.Shutdown(shutdownCtx) //nolint:contextcheck // parent is already canceled
		})
	}

	g.Go(func() error {
		return w.loop(gctx)
	})

	return g.Wait()
}

type watcher struct {
	sync   *FullSync
	opts   WatchOptions
	logger *slog.Logger
	target string

	failures int
}

func (w *watcher) loop(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sync: creating file watcher: %w", err)
	}
	defer fsw.Close()

	// The folder is watched, not the file: a download replaces the file by
	// rename, which would end a watch on the old inode.
	if err := fsw.Add(filepath.Dir(w.target)); err != nil {
		return fmt.Errorf("sync: watching %s: %w", filepath.Dir(w.target), err)
	}

	w.logger.Info("watch mode started",
		slog.String("collection", w.target),
		slog.Duration("poll_interval", w.opts.PollInterval),
	)

	w.runPass(ctx, fsw)

	poll := time.NewTimer(w.nextDelay())
	defer poll.Stop()

	debounce := time.NewTimer(w.opts.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch mode stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			if w.relevant(ev) {
				debounce.Reset(w.opts.Debounce)
			}

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("file watcher error", slog.String("error", watchErr.Error()))

		case <-debounce.C:
			if backoffFor(w.failures) > 0 {
				// The poll timer already waits out the backoff.
				continue
			}

			w.runPass(ctx, fsw)
			poll.Reset(w.nextDelay())

		case <-poll.C:
			w.runPass(ctx, fsw)
			poll.Reset(w.nextDelay())
		}
	}
}

// relevant reports whether ev changed the collection. In WAL mode edits
// land in the -wal file first.
func (w *watcher) relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}

	base := filepath.Base(w.target)
	name := filepath.Base(ev.Name)

	return name == base || name == base+"-wal"
}

func (w *watcher) nextDelay() time.Duration {
	return max(w.opts.PollInterval, backoffFor(w.failures))
}

// runPass runs one pass and then drops the file events the pass itself
// caused.
func (w *watcher) runPass(ctx context.Context, fsw *fsnotify.Watcher) {
	_, err := w.sync.Run(ctx)

	switch {
	case err == nil:
		if w.failures > 0 {
			w.logger.Info("sync recovered", slog.Int("after_failures", w.failures))
		}

		w.failures = 0
	case ctx.Err() != nil:
		return
	default:
		w.failures++

		w.logger.Warn("watch pass failed",
			slog.Int("consecutive_failures", w.failures),
			slog.Duration("next_attempt_in", w.nextDelay()),
		)
	}

	for {
		select {
		case _, ok := <-fsw.Events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
