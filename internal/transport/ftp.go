package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// ServerConn is the part of *ftp.ServerConn the FTP backend uses.
type ServerConn interface {
	Login(user, password string) error
	Quit() error
	NoOp() error
	ChangeDir(path string) error
	MakeDir(path string) error
	RemoveDir(path string) error
	Delete(path string) error
	Rename(from, to string) error
	List(path string) ([]*ftp.Entry, error)
	NameList(path string) ([]string, error)
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	Append(path string, r io.Reader) error
	FileSize(path string) (int64, error)
	GetTime(path string) (time.Time, error)
}

// FTPDialer opens an FTP control connection to addr.
type FTPDialer func(ctx context.Context, addr string) (ServerConn, error)

// serverConn adapts *ftp.ServerConn to ServerConn.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type ftpBackend struct {
	conn ServerConn

	mu   sync.Mutex
	ctx  context.Context
	ctrl net.Conn
	data net.Conn
}

func dialFTP(ctx context.Context, t *target, o *Options, custom FTPDialer) (*ftpBackend, error) {
	b := &ftpBackend{ctx: ctx}

	var conn ServerConn
	var err error
	if custom != nil {
		conn, err = custom(ctx, t.addr)
		if err != nil {
			return nil, classify(err, CouldntConnect)
		}
	} else {
		conn, err = b.dial(ctx, t, o)
		if err != nil {
			return nil, err
		}
	}

	if err := conn.Login(t.user, t.pass); err != nil {
		_ = conn.Quit()
		b.abort()
		return nil, classify(err, LoginDenied)
	}
	b.conn = conn
	return b, nil
}

func (b *ftpBackend) dial(ctx context.Context, t *target, o *Options) (ServerConn, error) {
	d, err := newDialer(o)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	implicit := t.scheme == "ftps"
	if implicit || o.UseSSL == SSLAll {
		if tlsConfig, err = newTLSConfig(o, t.host); err != nil {
			return nil, err
		}
	}

	// Every connection opened by the library goes through here. Data
	// connections are sent to the control host whatever address the
	// server advertised.
	dialFunc := func(network, address string) (net.Conn, error) {
		addr := address
		if b.connected() {
			_, port, err := net.SplitHostPort(address)
			if err != nil {
				return nil, err
			}
			addr = net.JoinHostPort(t.host, port)
		}
		conn, err := d.DialContext(b.context(), network, addr)
		if err != nil {
			return nil, err
		}
		if tlsConfig != nil {
			conn = tls.Client(conn, tlsConfig)
		}
		b.track(conn)
		return conn, nil
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithDialFunc(dialFunc),
	}
	switch {
	case implicit:
		opts = append(opts, ftp.DialWithTLS(tlsConfig))
	case tlsConfig != nil:
		// The control connection starts in clear text.
		ctrl, err := d.DialContext(ctx, "tcp", t.addr)
		if err != nil {
			return nil, err
		}
		b.track(ctrl)
		opts = append(opts, ftp.DialWithExplicitTLS(tlsConfig), ftp.DialWithNetConn(ctrl))
	}
	if !o.UseEPSV || o.FTPPort != "" {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}
	if o.Verbose && o.Trace != nil {
		opts = append(opts, ftp.DialWithDebugOutput(&maskedTrace{w: o.Trace}))
	}

	c, err := ftp.Dial(t.addr, opts...)
	if err != nil {
		b.abort()
		var te *Error
		if errors.As(err, &te) {
			return nil, te
		}
		if tlsConfig != nil {
			return nil, classify(err, SSLConnectError)
		}
		return nil, classify(err, WeirdServerReply)
	}
	return serverConn{c}, nil
}

func (b *ftpBackend) connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctrl != nil
}

func (b *ftpBackend) track(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctrl == nil {
		b.ctrl = conn
		return
	}
	b.data = conn
}

func (b *ftpBackend) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

func (b *ftpBackend) bind(ctx context.Context) {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()
}

func (b *ftpBackend) alive() bool {
	return b.conn.NoOp() == nil
}

func (b *ftpBackend) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data != nil {
		_ = b.data.Close()
	}
	if b.ctrl != nil {
		_ = b.ctrl.Close()
	}
}

func (b *ftpBackend) close() error {
	err := b.conn.Quit()
	b.abort()
	return err
}

func (b *ftpBackend) checkDir(dir string) error {
	return b.conn.ChangeDir(dir)
}

func (b *ftpBackend) mkdirAll(dir string) error {
	cur := "/"
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		cur = path.Join(cur, part)
		if err := b.conn.ChangeDir(cur); err == nil {
			continue
		}
		if err := b.conn.MakeDir(cur); err != nil {
			// Another client may have created it meanwhile.
			if cerr := b.conn.ChangeDir(cur); cerr != nil {
				return err
			}
		}
	}
	return b.conn.ChangeDir(dir)
}

func (b *ftpBackend) list(dir string) ([]FileInfo, error) {
	entries, err := b.conn.List(dir)
	if err != nil {
		return nil, err
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info := FileInfo{
			Name:    path.Base(e.Name),
			Size:    int64(e.Size),
			ModTime: e.Time,
		}
		switch e.Type {
		case ftp.EntryTypeFile:
			info.Type = FileTypeFile
		case ftp.EntryTypeFolder:
			info.Type = FileTypeDirectory
		case ftp.EntryTypeLink:
			info.Type = FileTypeSymlink
		default:
			info.Type = FileTypeOther
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (b *ftpBackend) nameList(dir string) ([]string, error) {
	names, err := b.conn.NameList(dir)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		names[i] = path.Base(name)
	}
	return names, nil
}

func (b *ftpBackend) size(p string) (int64, error) {
	return b.conn.FileSize(p)
}

func (b *ftpBackend) modTime(p string) (time.Time, error) {
	return b.conn.GetTime(p)
}

func (b *ftpBackend) retrieve(p string, w io.Writer) error {
	r, err := b.conn.Retr(p)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(w, r)
	closeErr := r.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

func (b *ftpBackend) store(p string, r io.Reader, appendMode bool) error {
	if appendMode {
		return b.conn.Append(p, r)
	}
	return b.conn.Stor(p, r)
}

// quote runs one raw FTP command. Path arguments are resolved against dir.
func (b *ftpBackend) quote(dir, cmd string) error {
	verb, arg, _ := strings.Cut(strings.TrimSpace(cmd), " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToUpper(verb) {
	case "NOOP":
		return b.conn.NoOp()
	case "CWD":
		return b.conn.ChangeDir(resolve(dir, arg))
	case "MKD", "XMKD":
		return b.conn.MakeDir(resolve(dir, arg))
	case "RMD", "XRMD":
		return b.conn.RemoveDir(resolve(dir, arg))
	case "DELE":
		return b.conn.Delete(resolve(dir, arg))
	case "RNFR":
		from, to, ok := strings.Cut(arg, " RNTO ")
		if !ok {
			return fmt.Errorf("RNFR needs the form \"RNFR <from> RNTO <to>\"")
		}
		return b.conn.Rename(resolve(dir, from), resolve(dir, to))
	default:
		return fmt.Errorf("unsupported quote command %q", verb)
	}
}

func (b *ftpBackend) wildcard() bool {
	return true
}

// maskedTrace copies the control conversation to w line by line, hiding
// the argument of PASS. Trace write errors never reach the connection.
type maskedTrace struct {
	mu      sync.Mutex
	w       io.Writer
	pending []byte
}

func (m *maskedTrace) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, p...)
	for {
		i := bytes.IndexByte(m.pending, '\n')
		if i < 0 {
			break
		}
		_, _ = m.w.Write(maskPass(m.pending[:i+1]))
		m.pending = m.pending[i+1:]
	}
	m.pending = append([]byte(nil), m.pending...)
	return len(p), nil
}

func maskPass(line []byte) []byte {
	if len(line) < 5 || !bytes.EqualFold(line[:5], []byte("PASS ")) {
		return line
	}
	return []byte("PASS xxxxx\r\n")
}
