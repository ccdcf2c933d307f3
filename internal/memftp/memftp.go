// Package memftp is an in-memory FTP server for tests.
//
// A Server holds a file tree; every Dial returns a Conn speaking to that
// tree with the method set of *ftp.ServerConn from github.com/jlaffaye/ftp.
// Failures are reported as *textproto.Error values with the reply codes a
// real server would send.
package memftp

import (
	"bytes"
	"context"
	"io"
	"net/textproto"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

type node struct {
	dir      bool
	denied   bool
	data     []byte
	mod      time.Time
	children map[string]*node
}

func newDir() *node {
	return &node{dir: true, mod: time.Now(), children: make(map[string]*node)}
}

// Server is an in-memory file tree shared by all its connections.
type Server struct {
	User     string
	Password string
	// ListDots adds "." and ".." to directory listings, like some Unix
	// servers do.
	ListDots bool
	// DisableMDTM makes GetTime fail with 502.
	DisableMDTM bool

	mu     sync.Mutex
	root   *node
	dials  int
	logins int
	quits  int
}

// NewServer returns an empty server accepting user and password.
func NewServer(user, password string) *Server {
	return &Server{User: user, Password: password, root: newDir()}
}

// Dial opens a new connection.
func (s *Server) Dial(ctx context.Context, _ string) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.dials++
	s.mu.Unlock()
	return &Conn{srv: s, cwd: "/"}, nil
}

// Dials returns how many connections were opened.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Logins returns how many successful logins happened.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Quits returns how many connections were closed with QUIT.
func (s *Server) Quits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quits
}

// WriteFile stores data at p, creating parent directories.
func (s *Server) WriteFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.mkdirAll(path.Dir(clean(p)))
	dir.children[path.Base(clean(p))] = &node{data: bytes.Clone(data), mod: time.Now()}
}

// SetModTime changes the modification time of p.
func (s *Server) SetModTime(p string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.lookup(clean(p)); n != nil {
		n.mod = t
	}
}

// DenyRead makes RETR of p fail with 550, the reply of most Unix servers
// to a permission problem.
func (s *Server) DenyRead(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.lookup(clean(p)); n != nil {
		n.denied = true
	}
}

// MkdirAll creates p and its parents.
func (s *Server) MkdirAll(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAll(clean(p))
}

// ReadFile returns the content of p.
func (s *Server) ReadFile(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lookup(clean(p))
	if n == nil || n.dir {
		return nil, false
	}
	return bytes.Clone(n.data), true
}

// IsDir reports whether p is an existing directory.
func (s *Server) IsDir(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lookup(clean(p))
	return n != nil && n.dir
}

// Exists reports whether p exists.
func (s *Server) Exists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(clean(p)) != nil
}

func clean(p string) string {
	return path.Clean("/" + p)
}

func (s *Server) lookup(p string) *node {
	n := s.root
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		if !n.dir {
			return nil
		}
		child, ok := n.children[part]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func (s *Server) mkdirAll(p string) *node {
	n := s.root
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		child, ok := n.children[part]
		if !ok || !child.dir {
			child = newDir()
			n.children[part] = child
		}
		n = child
	}
	return n
}

func reply(code int, msg string) error {
	return &textproto.Error{Code: code, Msg: msg}
}

var (
	errNotLoggedIn = reply(530, "Please login with USER and PASS.")
	errNoSuchFile  = reply(550, "No such file or directory.")
	errExists      = reply(550, "File exists.")
	errNotEmpty    = reply(550, "Directory not empty.")
	errClosed      = reply(421, "Connection closed.")
)

// Conn is one logged-in (or not yet logged-in) session.
type Conn struct {
	srv      *Server
	cwd      string
	loggedIn bool
	closed   bool
}

func (c *Conn) abs(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(c.cwd, p)
}

// begin locks the server and checks the session state.
func (c *Conn) begin() error {
	c.srv.mu.Lock()
	if c.closed {
		c.srv.mu.Unlock()
		return errClosed
	}
	if !c.loggedIn {
		c.srv.mu.Unlock()
		return errNotLoggedIn
	}
	return nil
}

func (c *Conn) end() {
	c.srv.mu.Unlock()
}

func (c *Conn) Login(user, password string) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.closed {
		return errClosed
	}
	if user != c.srv.User || password != c.srv.Password {
		return reply(530, "Login incorrect.")
	}
	c.loggedIn = true
	c.srv.logins++
	return nil
}

func (c *Conn) Quit() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.closed = true
	c.srv.quits++
	return nil
}

func (c *Conn) NoOp() error {
	if err := c.begin(); err != nil {
		return err
	}
	c.end()
	return nil
}

func (c *Conn) ChangeDir(p string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	target := c.abs(p)
	n := c.srv.lookup(target)
	if n == nil || !n.dir {
		return errNoSuchFile
	}
	c.cwd = target
	return nil
}

func (c *Conn) MakeDir(p string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	target := c.abs(p)
	parent := c.srv.lookup(path.Dir(target))
	if parent == nil || !parent.dir {
		return errNoSuchFile
	}
	if _, ok := parent.children[path.Base(target)]; ok {
		return errExists
	}
	parent.children[path.Base(target)] = newDir()
	return nil
}

func (c *Conn) RemoveDir(p string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	target := c.abs(p)
	n := c.srv.lookup(target)
	if n == nil || !n.dir || target == "/" {
		return errNoSuchFile
	}
	if len(n.children) > 0 {
		return errNotEmpty
	}
	delete(c.srv.lookup(path.Dir(target)).children, path.Base(target))
	return nil
}

func (c *Conn) Delete(p string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	target := c.abs(p)
	n := c.srv.lookup(target)
	if n == nil || n.dir {
		return errNoSuchFile
	}
	delete(c.srv.lookup(path.Dir(target)).children, path.Base(target))
	return nil
}

func (c *Conn) Rename(from, to string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	src, dst := c.abs(from), c.abs(to)
	n := c.srv.lookup(src)
	dstParent := c.srv.lookup(path.Dir(dst))
	if n == nil || dstParent == nil || !dstParent.dir {
		return errNoSuchFile
	}
	delete(c.srv.lookup(path.Dir(src)).children, path.Base(src))
	dstParent.children[path.Base(dst)] = n
	return nil
}

func (c *Conn) dirEntries(p string) ([]*ftp.Entry, error) {
	n := c.srv.lookup(c.abs(p))
	if n == nil {
		return nil, errNoSuchFile
	}
	if !n.dir {
		return []*ftp.Entry{entry(path.Base(p), n)}, nil
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []*ftp.Entry
	if c.srv.ListDots {
		entries = append(entries,
			&ftp.Entry{Name: ".", Type: ftp.EntryTypeFolder, Time: n.mod},
			&ftp.Entry{Name: "..", Type: ftp.EntryTypeFolder, Time: n.mod})
	}
	for _, name := range names {
		entries = append(entries, entry(name, n.children[name]))
	}
	return entries, nil
}

func entry(name string, n *node) *ftp.Entry {
	e := &ftp.Entry{Name: name, Time: n.mod, Type: ftp.EntryTypeFile, Size: uint64(len(n.data))}
	if n.dir {
		e.Type = ftp.EntryTypeFolder
		e.Size = 0
	}
	return e
}

func (c *Conn) List(p string) ([]*ftp.Entry, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()
	return c.dirEntries(p)
}

func (c *Conn) NameList(p string) ([]string, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()
	entries, err := c.dirEntries(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

func (c *Conn) Retr(p string) (io.ReadCloser, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()
	n := c.srv.lookup(c.abs(p))
	if n == nil || n.dir {
		return nil, errNoSuchFile
	}
	if n.denied {
		return nil, reply(550, "Permission denied.")
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(n.data))), nil
}

func (c *Conn) store(p string, r io.Reader, appendMode bool) error {
	// Read outside the lock: the reader may be slow or call back into
	// the test.
	data, rerr := io.ReadAll(r)

	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	target := c.abs(p)
	parent := c.srv.lookup(path.Dir(target))
	if parent == nil || !parent.dir {
		return errNoSuchFile
	}
	existing, ok := parent.children[path.Base(target)]
	if ok && existing.dir {
		return errNoSuchFile
	}
	if rerr != nil {
		return rerr
	}
	if appendMode && ok {
		existing.data = append(existing.data, data...)
		existing.mod = time.Now()
		return nil
	}
	parent.children[path.Base(target)] = &node{data: data, mod: time.Now()}
	return nil
}

func (c *Conn) Stor(p string, r io.Reader) error {
	return c.store(p, r, false)
}

func (c *Conn) Append(p string, r io.Reader) error {
	return c.store(p, r, true)
}

func (c *Conn) FileSize(p string) (int64, error) {
	if err := c.begin(); err != nil {
		return 0, err
	}
	defer c.end()
	n := c.srv.lookup(c.abs(p))
	if n == nil || n.dir {
		return 0, errNoSuchFile
	}
	return int64(len(n.data)), nil
}

func (c *Conn) GetTime(p string) (time.Time, error) {
	if err := c.begin(); err != nil {
		return time.Time{}, err
	}
	defer c.end()
	if c.srv.DisableMDTM {
		return time.Time{}, reply(502, "Command not implemented.")
	}
	n := c.srv.lookup(c.abs(p))
	if n == nil || n.dir {
		return time.Time{}, errNoSuchFile
	}
	return n.mod, nil
}
