// Package transport is the transfer engine behind ftpclient.
//
// A Handle is configured through its Options, performs one request per
// Perform call and keeps the server connection open between requests as long
// as the connection parameters do not change. Reset restores the default
// options without dropping the connection.
//
// FTP, FTPS (implicit TLS) and FTPES (explicit TLS) go through
// github.com/jlaffaye/ftp, SFTP through github.com/pkg/sftp.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
)

// backend is one open connection to a server.
type backend interface {
	// bind sets the context used by connections opened during a request.
	bind(ctx context.Context)
	alive() bool
	// abort closes the network connections immediately. It may be called
	// from another goroutine.
	abort()
	close() error

	checkDir(dir string) error
	mkdirAll(dir string) error
	list(dir string) ([]FileInfo, error)
	nameList(dir string) ([]string, error)
	size(p string) (int64, error)
	modTime(p string) (time.Time, error)
	retrieve(p string, w io.Writer) error
	store(p string, r io.Reader, appendMode bool) error
	quote(dir, cmd string) error
	wildcard() bool
}

// Handle performs requests against one server at a time. It is not safe
// for concurrent use.
type Handle struct {
	opts     Options
	info     Info
	progress *meter
	lib      *Library

	conn    backend
	connKey string

	ftpDialer FTPDialer
	closed    bool
}

// HandleOption customizes a Handle.
type HandleOption func(*Handle)

// WithFTPDialer replaces the function opening FTP control connections.
// The returned connection is not logged in yet.
func WithFTPDialer(d FTPDialer) HandleOption {
	return func(h *Handle) {
		h.ftpDialer = d
	}
}

// New creates a handle with default options and registers it with the
// process-wide library.
func New(opts ...HandleOption) *Handle {
	lib := Global()
	h := &Handle{
		opts: DefaultOptions(),
		info: defaultInfo(),
		lib:  lib,
	}
	for _, opt := range opts {
		opt(h)
	}
	lib.handles.Add(1)
	return h
}

// Reset restores the default options. The cached connection is kept.
func (h *Handle) Reset() {
	h.opts = DefaultOptions()
	h.info = defaultInfo()
	h.progress = nil
}

// Options returns the request options, to be modified in place before
// Perform.
func (h *Handle) Options() *Options {
	return &h.opts
}

// Info returns what was learned during the last Perform.
func (h *Handle) Info() Info {
	return h.info
}

// Close drops the cached connection and unregisters the handle.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.lib.handles.Add(-1)
	return h.drop(true)
}

func (h *Handle) drop(graceful bool) error {
	if h.conn == nil {
		return nil
	}
	var err error
	if graceful {
		err = h.conn.close()
	} else {
		h.conn.abort()
	}
	h.conn = nil
	h.connKey = ""
	return err
}

// target is the parsed request URL.
type target struct {
	scheme string
	host   string
	addr   string
	user   string
	pass   string
	// dir is the absolute directory of the resource.
	dir string
	// name is the last path segment, empty for directory URLs.
	name  string
	isDir bool
}

func (t *target) path() string {
	if t.name == "" {
		return t.dir
	}
	return path.Join(t.dir, t.name)
}

func parseTarget(o *Options) (*target, error) {
	if o.URL == "" {
		return nil, newError(URLMalformat, errors.New("no URL set"))
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return nil, newError(URLMalformat, err)
	}

	t := &target{scheme: strings.ToLower(u.Scheme), host: u.Hostname()}
	var defaultPort int
	switch t.scheme {
	case "ftp":
		defaultPort = 21
	case "ftps":
		defaultPort = 990
	case "sftp":
		defaultPort = 22
	default:
		return nil, newError(UnsupportedProtocol, fmt.Errorf("scheme %q", u.Scheme))
	}
	if t.host == "" {
		return nil, newError(URLMalformat, fmt.Errorf("no host in %q", o.URL))
	}

	port := defaultPort
	if o.Port > 0 {
		port = o.Port
	} else if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, newError(URLMalformat, err)
		}
	}
	t.addr = net.JoinHostPort(t.host, strconv.Itoa(port))

	if o.UserPwd != "" {
		t.user, t.pass, _ = strings.Cut(o.UserPwd, ":")
	} else if u.User != nil {
		t.user = u.User.Username()
		t.pass, _ = u.User.Password()
	}
	if t.user == "" && t.scheme != "sftp" {
		t.user, t.pass = "anonymous", "ftp@example.com"
	}

	p := u.Path
	if u.ForceQuery || u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	if p == "" {
		p = "/"
	}
	t.isDir = strings.HasSuffix(p, "/")
	clean := path.Clean("/" + p)
	if t.isDir || clean == "/" {
		t.isDir = true
		t.dir = clean
	} else {
		t.dir, t.name = path.Split(clean)
		t.dir = path.Clean(t.dir)
	}
	return t, nil
}

// connKey identifies the connection parameters a cached backend was opened
// with.
func connKey(t *target, o *Options) string {
	return strings.Join([]string{
		t.scheme, t.addr, t.user, t.pass,
		o.Proxy, o.ProxyUserPwd,
		strconv.Itoa(int(o.UseSSL)), strconv.Itoa(int(o.SSHAuthTypes)), o.SSHKnownHosts,
		o.SSLCert, o.SSLKey, o.KeyPasswd,
		strconv.FormatBool(o.SSLVerifyPeer), strconv.FormatBool(o.SSLVerifyHost),
		strconv.FormatBool(o.NoSignal), strconv.FormatBool(o.UseEPSV), o.FTPPort,
		fmt.Sprintf("%t/%p", o.Verbose, o.Trace),
	}, "\x00")
}

// Perform runs the request described by the current options.
func (h *Handle) Perform(ctx context.Context) error {
	if h.closed {
		return newError(FailedInit, errors.New("handle is closed"))
	}

	start := time.Now()
	h.info = defaultInfo()
	h.progress = nil
	defer func() { h.info.TotalTime = time.Since(start) }()

	t, err := parseTarget(&h.opts)
	if err != nil {
		return h.finish(err)
	}

	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	if err := h.meter().report(); err != nil {
		return h.finish(newError(AbortedByCallback, err))
	}

	b, err := h.connect(ctx, t)
	if err != nil {
		return h.finish(err)
	}

	b.bind(ctx)
	stop := context.AfterFunc(ctx, b.abort)
	err = h.run(b, t)
	stop()

	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			err = newError(OperationTimedout, err)
		case errors.Is(ctx.Err(), context.Canceled):
			err = newError(AbortedByCallback, err)
		}
		if ctx.Err() != nil || !reusable(err) {
			_ = h.drop(false)
		}
		return h.finish(err)
	}

	if rerr := h.meter().report(); rerr != nil {
		return h.finish(newError(AbortedByCallback, rerr))
	}
	return h.finish(nil)
}

// finish normalizes err and writes the request summary to the trace.
func (h *Handle) finish(err error) error {
	var te *Error
	if err != nil {
		te = classify(err, FailedInit)
	}
	if h.opts.Verbose && h.opts.Trace != nil {
		code := OK
		if te != nil {
			code = te.Code
		}
		_, _ = fmt.Fprintf(h.opts.Trace, "%s * %s %s: %d %s\n",
			time.Now().Format(time.RFC3339), h.method(), redact(h.opts.URL), int(code), code)
		if te != nil && te.Err != nil {
			_, _ = fmt.Fprintf(h.opts.Trace, "%s * cause: %v\n", time.Now().Format(time.RFC3339), te.Err)
		}
	}
	if te == nil {
		return nil
	}
	return te
}

func (h *Handle) method() string {
	o := &h.opts
	switch {
	case o.WildcardMatch:
		return "MGET"
	case o.Upload && o.Append:
		return "APPEND"
	case o.Upload:
		return "PUT"
	case o.NoBody:
		return "HEAD"
	case strings.HasSuffix(o.URL, "/"):
		return "LIST"
	default:
		return "GET"
	}
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

// reusable reports whether the connection survived err.
func reusable(err error) bool {
	var tp *textproto.Error
	var st *sftp.StatusError
	return errors.As(err, &tp) || errors.As(err, &st) ||
		errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrExist)
}

// connect returns the cached backend when it matches t and is still alive,
// otherwise opens a new one.
func (h *Handle) connect(ctx context.Context, t *target) (backend, error) {
	key := connKey(t, &h.opts)
	if h.conn != nil {
		if h.connKey == key {
			h.conn.bind(ctx)
			if h.conn.alive() {
				return h.conn, nil
			}
			_ = h.drop(false)
		} else {
			_ = h.drop(true)
		}
	}

	var b backend
	var err error
	switch t.scheme {
	case "sftp":
		b, err = dialSFTP(ctx, t, &h.opts)
	default:
		b, err = dialFTP(ctx, t, &h.opts, h.ftpDialer)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(OperationTimedout, err)
		}
		return nil, err
	}
	h.conn = b
	h.connKey = key
	return b, nil
}

func (h *Handle) run(b backend, t *target) error {
	o := &h.opts
	switch {
	case o.WildcardMatch:
		return h.wildcard(b, t)
	case o.Upload:
		if err := h.upload(b, t); err != nil {
			return err
		}
	case t.isDir:
		if err := h.enterDir(b, t.dir); err != nil {
			return err
		}
		if !o.NoBody {
			if err := h.list(b, t); err != nil {
				return err
			}
		}
	case o.NoBody:
		if err := h.stat(b, t); err != nil {
			return err
		}
	default:
		if err := h.download(b, t); err != nil {
			return err
		}
	}
	return h.postQuote(b, t)
}

func (h *Handle) enterDir(b backend, dir string) error {
	err := b.checkDir(dir)
	if err == nil {
		return nil
	}
	if h.opts.CreateMissingDirs {
		if merr := b.mkdirAll(dir); merr != nil {
			return classify(merr, RemoteAccessDenied)
		}
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if !reusable(err) {
		return classify(err, RemoteAccessDenied)
	}
	return newError(RemoteAccessDenied, err)
}

func (h *Handle) list(b backend, t *target) error {
	w, lim := h.downloadWriter(h.opts.Write, -1)
	defer lim.Stop()

	if h.opts.DirListOnly {
		names, err := b.nameList(t.dir)
		if err != nil {
			return classify(err, RemoteAccessDenied)
		}
		for _, name := range names {
			if _, err := io.WriteString(w, name+"\n"); err != nil {
				return err
			}
		}
		return nil
	}

	entries, err := b.list(t.dir)
	if err != nil {
		return classify(err, RemoteAccessDenied)
	}
	for _, e := range entries {
		if _, err := io.WriteString(w, formatEntry(e)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// stat fills Info without transferring the resource.
func (h *Handle) stat(b backend, t *target) error {
	p := t.path()
	if h.opts.FileTime {
		mt, err := b.modTime(p)
		if err == nil {
			h.info.FileTime = mt.Unix()
		}
	}
	size, err := b.size(p)
	if err != nil {
		return classify(err, RemoteFileNotFound)
	}
	h.info.ContentLength = size
	return nil
}

func (h *Handle) download(b backend, t *target) error {
	p := t.path()
	size, err := b.size(p)
	if err == nil {
		h.info.ContentLength = size
	} else {
		size = -1
	}
	if h.opts.FileTime {
		if mt, err := b.modTime(p); err == nil {
			h.info.FileTime = mt.Unix()
		}
	}

	w, lim := h.downloadWriter(h.opts.Write, size)
	defer lim.Stop()
	if err := b.retrieve(p, w); err != nil {
		return classify(err, FTPCouldntRetrFile)
	}
	return nil
}

func (h *Handle) upload(b backend, t *target) error {
	if t.isDir {
		return newError(URLMalformat, errors.New("upload target is a directory"))
	}
	if h.opts.Read == nil {
		return newError(ReadError, errors.New("no upload source"))
	}
	if h.opts.CreateMissingDirs {
		if err := b.checkDir(t.dir); err != nil {
			if err := b.mkdirAll(t.dir); err != nil {
				return classify(err, RemoteAccessDenied)
			}
		}
	}

	r, lim := h.uploadReader(h.opts.Read)
	defer lim.Stop()
	if err := b.store(t.path(), r, h.opts.Append); err != nil {
		return classify(err, UploadFailed)
	}
	return nil
}

func (h *Handle) postQuote(b backend, t *target) error {
	for _, cmd := range h.opts.PostQuote {
		ignore := strings.HasPrefix(cmd, "*")
		cmd = strings.TrimPrefix(cmd, "*")
		if err := b.quote(t.dir, cmd); err != nil && !ignore {
			var te *Error
			if errors.As(err, &te) {
				return te
			}
			return newError(QuoteError, fmt.Errorf("%s: %w", cmd, err))
		}
	}
	return nil
}

// resolve makes a quote command argument absolute.
func resolve(dir, p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(dir, p)
}

func formatEntry(e FileInfo) string {
	mode := "-rw-r--r--"
	switch e.Type {
	case FileTypeDirectory:
		mode = "drwxr-xr-x"
	case FileTypeSymlink:
		mode = "lrwxrwxrwx"
	case FileTypeOther:
		mode = "?---------"
	}
	stamp := e.ModTime.Format("Jan _2  2006")
	if time.Since(e.ModTime) < 180*24*time.Hour {
		stamp = e.ModTime.Format("Jan _2 15:04")
	}
	return fmt.Sprintf("%s 1 ftp ftp %12d %s %s", mode, e.Size, stamp, e.Name)
}
