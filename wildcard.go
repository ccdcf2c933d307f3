package ftpclient

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/embeddedmz/ftpclient/internal/transport"
)

// DownloadWildcard downloads every remote entry matching remoteWildcard
// into localDir, which must be an existing directory. Only the last path
// segment may hold a pattern.
//
// When the pattern ends with "*", matched directories are downloaded
// recursively: "docs/*" also fetches "docs/sub/*" into localDir/sub. Every
// subdirectory is attempted; the returned error joins the failures of all
// of them. A pattern matching nothing in an existing directory is not an
// error; a missing base directory is (CodeRemoteAccessDenied), and so is a
// file the server refuses to send.
//
// Wildcard downloads are not available over SFTP.
//
// Example:
//
//	// mirrors the remote folder "pictures" into /tmp/pictures
//	err := client.DownloadWildcard("/tmp/pictures", "pictures/*")
func (c *Client) DownloadWildcard(localDir, remoteWildcard string) error {
	if localDir == "" || remoteWildcard == "" {
		return ErrEmptyArgument
	}
	if c.handle == nil {
		c.logError("session not initialized")
		return ErrSessionInactive
	}
	if c.protocol == SFTP {
		c.logError("wildcard download is not supported", "path", remoteWildcard)
		return ErrUnsupported
	}
	return c.downloadWildcard(localDir, remoteWildcard, 0)
}

func (c *Client) downloadWildcard(localDir, pattern string, depth int) error {
	if fi, err := os.Stat(localDir); err != nil || !fi.IsDir() {
		c.logError("wildcard destination is not a directory", "local", localDir)
		return fmt.Errorf("%s: %w", localDir, ErrNotDirectory)
	}
	if depth >= c.maxWildcardDepth {
		c.logError("wildcard recursion too deep", "path", pattern, "depth", depth)
		return fmt.Errorf("%s: %w", pattern, ErrWildcardDepth)
	}

	o, err := c.reset()
	if err != nil {
		return err
	}
	st := &wildcardTransfer{outputDir: localDir}
	o.URL = c.buildURL(pattern)
	o.WildcardMatch = true
	o.ChunkBegin = st.begin
	o.Write = st
	o.ChunkEnd = st.end

	perr := c.perform("mget", pattern)
	st.abandon(perr != nil)

	// A pattern matching nothing is an empty result. Anything else, a
	// missing base directory or a file the server refuses included, fails.
	if perr != nil && !errors.Is(perr, transport.ErrNoMatch) {
		if st.err != nil {
			perr = errors.Join(perr, st.err)
		}
		c.logFailure("unable to import elements", pattern, perr)
		return perr
	}

	if len(st.dirs) == 0 || !strings.HasSuffix(pattern, "*") {
		return nil
	}
	base := strings.TrimSuffix(pattern, "*")
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}

	var errs []error
	for _, dir := range st.dirs {
		if dir == "." || dir == ".." {
			continue
		}
		remote := base + dir + "/*"
		local := filepath.Join(localDir, dir)
		if err := c.downloadWildcard(local, remote, depth+1); err != nil {
			c.logError("problem while importing directory", "path", remote, "local", local)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// wildcardTransfer is the state of one DownloadWildcard level.
type wildcardTransfer struct {
	outputDir string
	// file receives the body of the entry being downloaded.
	file *os.File
	// dirs lists the matched directories, in listing order.
	dirs []string
	// err is the local failure that made a callback fail.
	err error
}

func (st *wildcardTransfer) begin(info transport.FileInfo, _ int) transport.ChunkResult {
	target := filepath.Join(st.outputDir, info.Name)
	switch info.Type {
	case transport.FileTypeDirectory:
		st.dirs = append(st.dirs, info.Name)
		if err := os.Mkdir(target, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			st.err = fmt.Errorf("ftpclient: creating local directory: %w", err)
			return transport.ChunkFail
		}
	case transport.FileTypeFile:
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			st.err = fmt.Errorf("ftpclient: creating local file: %w", err)
			return transport.ChunkFail
		}
		st.file = f
	}
	return transport.ChunkOK
}

func (st *wildcardTransfer) Write(p []byte) (int, error) {
	if st.file == nil {
		return len(p), nil
	}
	return st.file.Write(p)
}

func (st *wildcardTransfer) end() transport.ChunkResult {
	if st.file == nil {
		return transport.ChunkOK
	}
	err := st.file.Close()
	st.file = nil
	if err != nil {
		st.err = fmt.Errorf("ftpclient: closing local file: %w", err)
		return transport.ChunkFail
	}
	return transport.ChunkOK
}

// abandon closes the file of an interrupted entry and, when the transfer
// failed, removes it.
func (st *wildcardTransfer) abandon(failed bool) {
	if st.file == nil {
		return
	}
	name := st.file.Name()
	_ = st.file.Close()
	st.file = nil
	if failed {
		_ = os.Remove(name)
	}
}
