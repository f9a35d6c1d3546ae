package remote

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/time/rate"
)

// burstMultiplier sizes the token bucket at two seconds of traffic so a short
// pause between files can be spent on the next read without lowering the
// sustained rate below the limit.
const burstMultiplier = 2

// Limiter caps aggregate transfer throughput for one store. A nil *Limiter
// means unlimited; every method is nil-safe.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter returns a limiter for bytesPerSec, or nil when bytesPerSec <= 0.
func NewLimiter(bytesPerSec int64, logger *slog.Logger) *Limiter {
	if bytesPerSec <= 0 {
		return nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	burst := int(bytesPerSec) * burstMultiplier
	logger.Info("bandwidth limiter enabled",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return &Limiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// WrapReader returns r throttled by the limiter.
func (l *Limiter) WrapReader(ctx context.Context, r io.Reader) io.Reader {
	if l == nil {
		return r
	}

	return &limitedReader{r: r, l: l.limiter, ctx: ctx}
}

// WrapWriter returns w throttled by the limiter.
func (l *Limiter) WrapWriter(ctx context.Context, w io.Writer) io.Writer {
	if l == nil {
		return w
	}

	return &limitedWriter{w: w, l: l.limiter, ctx: ctx}
}

type limitedReader struct {
	r   io.Reader
	l   *rate.Limiter
	ctx context.Context
}

func (r *limitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if waitErr := waitN(r.ctx, r.l, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

type limitedWriter struct {
	w   io.Writer
	l   *rate.Limiter
	ctx context.Context
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		if waitErr := waitN(w.ctx, w.l, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

// waitN takes n tokens in burst-sized bites; WaitN rejects requests larger
// than the burst.
func waitN(ctx context.Context, l *rate.Limiter, n int) error {
	burst := l.Burst()

	for n > 0 {
		take := min(n, burst)
		if err := l.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
