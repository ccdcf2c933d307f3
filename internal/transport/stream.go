package transport

import (
	"io"

	"github.com/embeddedmz/ftpclient/internal/ratelimit"
)

// meter tracks the byte counts reported to the progress callback.
type meter struct {
	fn      ProgressFunc
	dlTotal int64
	dlNow   int64
	ulTotal int64
	ulNow   int64
}

func (m *meter) report() error {
	if m == nil || m.fn == nil {
		return nil
	}
	if err := m.fn(m.dlTotal, m.dlNow, m.ulTotal, m.ulNow); err != nil {
		return errAborted
	}
	return nil
}

// sink wraps the caller's writer. Errors from the caller are tagged so they
// map to WriteError, progress aborts map to AbortedByCallback.
type sink struct {
	w     io.Writer
	meter *meter
	n     *int64
}

func (s *sink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	*s.n += int64(n)
	if s.meter != nil {
		s.meter.dlNow += int64(n)
	}
	if err != nil {
		return n, &writeError{err: err}
	}
	if n < len(p) {
		return n, &writeError{err: io.ErrShortWrite}
	}
	if err := s.meter.report(); err != nil {
		return n, err
	}
	return n, nil
}

// source wraps the caller's reader for uploads.
type source struct {
	r     io.Reader
	meter *meter
	n     *int64
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	*s.n += int64(n)
	if s.meter != nil {
		s.meter.ulNow += int64(n)
	}
	if err != nil && err != io.EOF {
		return n, &readError{err: err}
	}
	if rerr := s.meter.report(); rerr != nil {
		return n, rerr
	}
	return n, err
}

// downloadWriter composes the write path of a download: caller writer,
// progress, bandwidth limit.
func (h *Handle) downloadWriter(w io.Writer, total int64) (io.Writer, *ratelimit.Limiter) {
	if w == nil {
		w = io.Discard
	}
	m := h.meter()
	if m != nil && total > 0 {
		m.dlTotal = total
	}
	var out io.Writer = &sink{w: w, meter: m, n: &h.info.BytesDown}
	lim := ratelimit.New(h.opts.MaxRecvSpeed)
	return ratelimit.NewWriter(out, lim), lim
}

// uploadReader composes the read path of an upload.
func (h *Handle) uploadReader(r io.Reader) (io.Reader, *ratelimit.Limiter) {
	m := h.meter()
	if m != nil && h.opts.InFileSize > 0 {
		m.ulTotal = h.opts.InFileSize
	}
	var in io.Reader = &source{r: r, meter: m, n: &h.info.BytesUp}
	lim := ratelimit.New(h.opts.MaxSendSpeed)
	return ratelimit.NewReader(in, lim), lim
}

// meter returns the progress state of the current request, nil when
// progress is disabled.
func (h *Handle) meter() *meter {
	if h.opts.NoProgress || h.opts.Progress == nil {
		return nil
	}
	if h.progress == nil {
		h.progress = &meter{fn: h.opts.Progress}
	}
	return h.progress
}
