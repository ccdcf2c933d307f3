package transport

import (
	"errors"
	"fmt"
	"path"
)

// ErrNoMatch is wrapped by the RemoteFileNotFound error of a wildcard
// request whose pattern matched no entry of an existing directory.
var ErrNoMatch = errors.New("no remote entry matches the pattern")

// wildcard downloads every entry of the URL directory matching the last
// URL segment. Only regular files have a body; directories and links are
// reported to ChunkBegin and ChunkEnd only.
func (h *Handle) wildcard(b backend, t *target) error {
	if !b.wildcard() {
		return newError(UnsupportedProtocol, fmt.Errorf("wildcard matching is not available for %s", t.scheme))
	}

	pattern := t.name
	if pattern == "" {
		pattern = "*"
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return newError(URLMalformat, fmt.Errorf("pattern %q: %w", pattern, err))
	}

	if err := h.enterDir(b, t.dir); err != nil {
		return err
	}
	entries, err := b.list(t.dir)
	if err != nil {
		return classify(err, RemoteFileNotFound)
	}

	var matched []FileInfo
	for _, e := range entries {
		if ok, _ := path.Match(pattern, e.Name); ok {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return newError(RemoteFileNotFound, fmt.Errorf("%w: %q in %s", ErrNoMatch, pattern, t.dir))
	}

	o := &h.opts
	for i, e := range matched {
		if o.ChunkBegin != nil {
			switch o.ChunkBegin(e, len(matched)-i-1) {
			case ChunkFail:
				return newError(ChunkFailed, fmt.Errorf("chunk begin refused %s", e.Name))
			case ChunkSkip:
				continue
			}
		}

		if e.Type == FileTypeFile {
			if err := h.fetchEntry(b, path.Join(t.dir, e.Name), e.Size); err != nil {
				return err
			}
		}

		if o.ChunkEnd != nil && o.ChunkEnd() == ChunkFail {
			return newError(ChunkFailed, errors.New("chunk end failed"))
		}
	}
	return nil
}

func (h *Handle) fetchEntry(b backend, p string, size int64) error {
	w, lim := h.downloadWriter(h.opts.Write, size)
	defer lim.Stop()
	if err := b.retrieve(p, w); err != nil {
		return classify(err, FTPCouldntRetrFile)
	}
	return nil
}
