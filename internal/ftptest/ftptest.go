// Package ftptest runs an in-process FTP server over an in-memory file
// system, for tests going through the real FTP client stack.
package ftptest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/spf13/afero"
)

// Mode selects the transport security of the control connection.
type Mode int

const (
	// Plain accepts clear text and AUTH TLS.
	Plain Mode = iota
	// Explicit requires AUTH TLS before login.
	Explicit
	// Implicit starts TLS on connect.
	Implicit
)

// Server is a running FTP server. It is stopped by the test cleanup.
type Server struct {
	Addr string
	Host string
	Port int
	// Fs is the tree served to every client.
	Fs afero.Fs

	user     string
	password string
	mode     Mode
	tls      *tls.Config
	ftp      *ftpserver.FtpServer
	done     chan struct{}

	mu     sync.Mutex
	logins int
}

// NewServer starts a server on a random loopback port accepting user and
// password.
func NewServer(t testing.TB, user, password string, mode Mode) *Server {
	t.Helper()

	cert, err := selfSigned()
	if err != nil {
		t.Fatalf("generating certificate: %v", err)
	}
	s := &Server{
		Fs:       afero.NewMemMapFs(),
		user:     user,
		password: password,
		mode:     mode,
		tls:      &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		done:     make(chan struct{}),
	}

	s.ftp = ftpserver.NewFtpServer(s)
	if err := s.ftp.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.Addr = s.ftp.Addr()
	host, port, _ := net.SplitHostPort(s.Addr)
	s.Host = host
	s.Port, _ = strconv.Atoi(port)

	go func() {
		defer close(s.done)
		_ = s.ftp.Serve()
	}()
	t.Cleanup(s.Close)
	return s
}

// Close stops the server.
func (s *Server) Close() {
	_ = s.ftp.Stop()
	<-s.done
}

// Logins returns the number of successful authentications.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// GetSettings implements ftpserver.MainDriver.
func (s *Server) GetSettings() (*ftpserver.Settings, error) {
	settings := &ftpserver.Settings{
		ListenAddr:  "127.0.0.1:0",
		IdleTimeout: 30,
	}
	switch s.mode {
	case Explicit:
		settings.TLSRequired = ftpserver.MandatoryEncryption
	case Implicit:
		settings.TLSRequired = ftpserver.ImplicitEncryption
	default:
		settings.TLSRequired = ftpserver.ClearOrEncrypted
	}
	return settings, nil
}

// ClientConnected implements ftpserver.MainDriver.
func (s *Server) ClientConnected(ftpserver.ClientContext) (string, error) {
	return "ftptest ready", nil
}

// ClientDisconnected implements ftpserver.MainDriver.
func (s *Server) ClientDisconnected(ftpserver.ClientContext) {}

// AuthUser implements ftpserver.MainDriver.
func (s *Server) AuthUser(_ ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	if user != s.user || pass != s.password {
		return nil, errors.New("bad credentials")
	}
	s.mu.Lock()
	s.logins++
	s.mu.Unlock()
	return s.Fs, nil
}

// GetTLSConfig implements ftpserver.MainDriver.
func (s *Server) GetTLSConfig() (*tls.Config, error) {
	return s.tls, nil
}

// WriteFile stores data at p, creating parent directories.
func (s *Server) WriteFile(t testing.TB, p string, data []byte) {
	t.Helper()
	if err := s.Fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path.Dir(p), err)
	}
	if err := afero.WriteFile(s.Fs, p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}

// ReadFile returns the content of p.
func (s *Server) ReadFile(p string) ([]byte, error) {
	return afero.ReadFile(s.Fs, p)
}

func selfSigned() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "ftptest"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("creating certificate: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
