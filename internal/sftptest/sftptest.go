// Package sftptest runs an in-process SSH server exposing an in-memory
// SFTP file system, for tests.
package sftptest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Server is a running SSH server. It is shut down by the test cleanup.
type Server struct {
	Addr    string
	Host    string
	Port    int
	HostKey ssh.PublicKey

	user     string
	password string
	config   *ssh.ServerConfig
	handlers sftp.Handlers
	ln       net.Listener
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns []net.Conn
	// logins counts successful authentications.
	logins int
}

// NewServer starts a server on a random loopback port accepting user and
// password.
func NewServer(t testing.TB, user, password string) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("creating host key signer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{
		Addr:     ln.Addr().String(),
		HostKey:  signer.PublicKey(),
		user:     user,
		password: password,
		handlers: sftp.InMemHandler(),
		ln:       ln,
	}
	host, port, _ := net.SplitHostPort(s.Addr)
	s.Host = host
	s.Port, _ = strconv.Atoi(port)

	s.config = &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == s.user && string(pass) == s.password {
				s.mu.Lock()
				s.logins++
				s.mu.Unlock()
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	s.config.AddHostKey(signer)

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Logins returns the number of successful authentications.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Close stops the listener and drops every connection.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, nc)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(nc)
		}()
	}
}

func (s *Server) handle(nc net.Conn) {
	conn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		_ = nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.session(channel, requests)
	}
}

func (s *Server) session(channel ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		ok := req.Type == "subsystem" && subsystem(req.Payload) == "sftp"
		_ = req.Reply(ok, nil)
		if !ok {
			continue
		}
		go func() {
			server := sftp.NewRequestServer(channel, s.handlers)
			if err := server.Serve(); err != nil && err != io.EOF {
				_ = server.Close()
			}
			_ = channel.Close()
		}()
	}
}

// subsystem decodes the name of an ssh "subsystem" request.
func subsystem(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := binary.BigEndian.Uint32(payload)
	if int(n) > len(payload)-4 {
		return ""
	}
	return string(payload[4 : 4+n])
}

// KnownHostsLine returns a known_hosts line trusting the server key.
func (s *Server) KnownHostsLine() string {
	return knownhosts.Line([]string{knownhosts.Normalize(s.Addr)}, s.HostKey)
}

// WriteKnownHosts writes a known_hosts file trusting the server into dir
// and returns its path.
func (s *Server) WriteKnownHosts(t testing.TB, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "known_hosts")
	if err := os.WriteFile(p, []byte(s.KnownHostsLine()+"\n"), 0o600); err != nil {
		t.Fatalf("writing known_hosts: %v", err)
	}
	return p
}

// Client opens an SFTP client to the server, closed by the test cleanup.
func (s *Server) Client(t testing.TB) *sftp.Client {
	t.Helper()
	sc, err := ssh.Dial("tcp", s.Addr, &ssh.ClientConfig{
		User:            s.user,
		Auth:            []ssh.AuthMethod{ssh.Password(s.password)},
		HostKeyCallback: ssh.FixedHostKey(s.HostKey),
	})
	if err != nil {
		t.Fatalf("ssh dial: %v", err)
	}
	c, err := sftp.NewClient(sc)
	if err != nil {
		_ = sc.Close()
		t.Fatalf("sftp client: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		_ = sc.Close()
	})
	return c
}

// WriteFile stores data at p, creating parent directories.
func (s *Server) WriteFile(t testing.TB, p string, data []byte) {
	t.Helper()
	c := s.Client(t)
	if err := c.MkdirAll(path.Dir(p)); err != nil {
		t.Fatalf("mkdir %s: %v", path.Dir(p), err)
	}
	f, err := c.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", p, err)
	}
}

// ReadFile returns the content of p.
func (s *Server) ReadFile(t testing.TB, p string) ([]byte, error) {
	t.Helper()
	f, err := s.Client(t).Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	_, err = io.Copy(&buf, f)
	return buf.Bytes(), err
}

// Stat returns information about p.
func (s *Server) Stat(t testing.TB, p string) (os.FileInfo, error) {
	t.Helper()
	return s.Client(t).Stat(p)
}
