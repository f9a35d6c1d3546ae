package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/flashsync/internal/config"
	"github.com/tonimelisma/flashsync/internal/mediadb"
	"github.com/tonimelisma/flashsync/internal/prefs"
	"github.com/tonimelisma/flashsync/internal/synclog"
	"github.com/tonimelisma/flashsync/internal/tokenfile"
)

// Token state constants for status reporting.
const (
	tokenStateMissing = "not logged in"
	tokenStateExpired = "expired (refreshed on next sync)"
	tokenStateValid   = "valid"
	tokenStateNone    = "not needed"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state, pending media changes and login status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := collectStatus(cmd.Context(), resolvedCfg, time.Now())
			if err != nil {
				return err
			}

			st.print(os.Stdout)

			return nil
		},
	}
}

// statusInfo is everything the status command reports.
type statusInfo struct {
	Backend        string
	RootFolder     string
	CollectionPath string
	CollectionSize int64 // -1 when there is no collection yet
	LastSync       time.Time
	PendingMedia   int
	Interrupted    bool
	Token          string
	WatchPID       int

	now time.Time
}

// collectStatus gathers local state only; it never contacts the remote.
func collectStatus(ctx context.Context, cfg *config.Config, now time.Time) (*statusInfo, error) {
	sess := newSession(cfg, buildLogger())
	layout := sess.layout

	st := &statusInfo{
		Backend:        cfg.Backend,
		RootFolder:     cfg.RootFolder,
		CollectionPath: layout.CollectionPath,
		CollectionSize: -1,
		Interrupted:    synclog.Exists(layout.SyncLogPath),
		Token:          tokenState(cfg, now),
		now:            now,
	}

	if info, err := os.Stat(layout.CollectionPath); err == nil {
		st.CollectionSize = info.Size()
	}

	p, err := prefs.Load(layout.PrefsPath)
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}

	if p.LastSyncTime > 0 {
		st.LastSync = time.Unix(p.LastSyncTime, 0)
	}

	if _, err := os.Stat(layout.MediaDBPath); err == nil {
		db, err := mediadb.Open(ctx, layout.MediaDBPath, sess.logger)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		if st.PendingMedia, err = db.DirtyCount(ctx); err != nil {
			return nil, err
		}
	}

	if pid, ok := runningWatchPID(cfg.DataDir); ok {
		st.WatchPID = pid
	}

	return st, nil
}

// tokenState describes the OneDrive token without refreshing it.
func tokenState(cfg *config.Config, now time.Time) string {
	if cfg.Backend != config.BackendOneDrive {
		return tokenStateNone
	}

	tf, err := tokenfile.Load(cfg.TokenPath())
	if err != nil || tf == nil {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Sprintf("unreadable (%v)", err)
		}

		return tokenStateMissing
	}

	if !tf.Token.Expiry.IsZero() && tf.Token.Expiry.Before(now) {
		return tokenStateExpired
	}

	return tokenStateValid
}

func (st *statusInfo) print(w io.Writer) {
	fmt.Fprintf(w, "Backend:        %s (folder %q)\n", st.Backend, st.RootFolder)
	fmt.Fprintf(w, "Login:          %s\n", st.Token)

	if st.CollectionSize < 0 {
		fmt.Fprintf(w, "Collection:     %s (missing)\n", st.CollectionPath)
	} else {
		fmt.Fprintf(w, "Collection:     %s (%s)\n", st.CollectionPath, humanize.Bytes(uint64(st.CollectionSize)))
	}

	if st.LastSync.IsZero() {
		fmt.Fprintln(w, "Last sync:      never")
	} else {
		fmt.Fprintf(w, "Last sync:      %s\n", humanize.RelTime(st.LastSync, st.now, "ago", "from now"))
	}

	fmt.Fprintf(w, "Pending media:  %s\n", humanize.Comma(int64(st.PendingMedia)))

	if st.Interrupted {
		fmt.Fprintln(w, "Media sync:     interrupted; the next sync resumes it")
	}

	if st.WatchPID > 0 {
		fmt.Fprintf(w, "Watch:          running (PID %d)\n", st.WatchPID)
	}
}
