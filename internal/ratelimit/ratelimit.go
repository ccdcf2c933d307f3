// Package ratelimit throttles transfer streams to a byte rate.
//
// It is used by the transport layer to honour the download and upload
// bandwidth limits of a session.
package ratelimit

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket limiting a stream to a number of bytes per
// second. The bucket holds at most one second worth of tokens and starts
// empty, so the first second of a transfer is throttled too.
//
// A nil *Limiter does not limit anything.
type Limiter struct {
	lim    *rate.Limiter
	burst  int
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a limiter for bytesPerSecond. It returns nil when
// bytesPerSecond is not positive.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := int(bytesPerSecond)
	lim := rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
	lim.AllowN(time.Now(), burst)

	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		lim:    lim,
		burst:  burst,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Stop releases goroutines blocked in the limiter. Reads and writes through
// a stopped limiter fail with context.Canceled. Stop is idempotent.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	l.cancel()
}

// chunk caps a request to what the bucket can ever hold.
func (l *Limiter) chunk(n, max int) int {
	if n > max {
		n = max
	}
	if n > l.burst {
		n = l.burst
	}
	return n
}

func (l *Limiter) take(n int) error {
	if l == nil || n <= 0 {
		return nil
	}
	return l.lim.WaitN(l.ctx, n)
}

type reader struct {
	r       io.Reader
	limiter *Limiter
}

// NewReader returns r throttled by limiter, or r itself when limiter is nil.
func NewReader(r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{r: r, limiter: limiter}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Small reads keep the rate smooth.
	const maxChunkSize = 8 * 1024
	n := r.limiter.chunk(len(p), maxChunkSize)
	if err := r.limiter.take(n); err != nil {
		return 0, err
	}
	return r.r.Read(p[:n])
}

type writer struct {
	w       io.Writer
	limiter *Limiter
}

// NewWriter returns w throttled by limiter, or w itself when limiter is nil.
func NewWriter(w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{w: w, limiter: limiter}
}

func (w *writer) Write(p []byte) (int, error) {
	const maxChunkSize = 64 * 1024

	total := 0
	for total < len(p) {
		n := w.limiter.chunk(len(p)-total, maxChunkSize)
		if err := w.limiter.take(n); err != nil {
			return total, err
		}
		written, err := w.w.Write(p[total : total+n])
		total += written
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
