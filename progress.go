package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/mattn/go-isatty"
)

// progressTemplate renders "<status> 3 / 10 [====>   ] 30%".
const progressTemplate = `{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }}`

// progressReporter is what a sync pass reports to.
type progressReporter interface {
	SetStatus(text string)
	SetProgress(current, total int)
	Close()
}

// newReporter picks a progress bar when out is a terminal and log lines
// otherwise, so redirected output stays readable.
func newReporter(out *os.File, logger *slog.Logger) progressReporter {
	if flagQuiet {
		return &logReporter{logger: logger}
	}

	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		return &barReporter{out: out}
	}

	return &logReporter{logger: logger}
}

// barReporter prints status lines and a pb progress bar for counted work.
type barReporter struct {
	out    io.Writer
	status string
	bar    *pb.ProgressBar
}

func (r *barReporter) SetStatus(text string) {
	r.finishBar()
	r.status = text
	fmt.Fprintln(r.out, text)
}

func (r *barReporter) SetProgress(current, total int) {
	if total <= 0 {
		return
	}

	if r.bar != nil && r.bar.Total() != int64(total) {
		r.finishBar()
	}

	if r.bar == nil {
		r.bar = pb.New(total).
			SetWriter(r.out).
			SetTemplateString(progressTemplate).
			Set("prefix", r.status).
			Start()
	}

	r.bar.SetCurrent(int64(current))

	if current >= total {
		r.finishBar()
	}
}

// Close stops a running bar.
func (r *barReporter) Close() {
	r.finishBar()
}

func (r *barReporter) finishBar() {
	if r.bar == nil {
		return
	}

	r.bar.Finish()
	r.bar = nil
}

// logReporter turns progress into log records.
type logReporter struct {
	logger *slog.Logger
	status string
}

func (r *logReporter) SetStatus(text string) {
	r.status = text
	r.logger.Info("sync status", slog.String("status", text))
}

func (r *logReporter) SetProgress(current, total int) {
	r.logger.Debug("sync progress",
		slog.String("status", r.status),
		slog.Int("current", current),
		slog.Int("total", total),
	)
}

func (r *logReporter) Close() {}
