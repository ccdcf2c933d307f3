package ftpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// discardLogger is the default logger: nothing is enabled.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// funcHandler is a slog.Handler feeding a single-argument log function.
// Records are formatted as "[FTPClient][Error] message key=value".
type funcHandler struct {
	fn     func(string)
	attrs  []slog.Attr
	prefix string
}

func newFuncHandler(fn func(string)) *funcHandler {
	return &funcHandler{fn: fn}
}

func (h *funcHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}

func (h *funcHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString("[FTPClient]")
	if r.Level >= slog.LevelError {
		b.WriteString("[Error] ")
	} else {
		b.WriteString("[Warning] ")
	}
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	h.fn(b.String())
	return nil
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, prefix+a.Key+".", ga)
		}
		return
	}
	fmt.Fprintf(b, " %s%s=%v", prefix, a.Key, a.Value.Any())
}

func (h *funcHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *funcHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}
