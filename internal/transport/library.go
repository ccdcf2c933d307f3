package transport

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/net/proxy"
)

// Library is the process-wide state shared by every Handle. It is built
// once, on first use, and lives until the process exits.
type Library struct {
	// RootCAs is the system certificate pool used to verify FTPS servers.
	RootCAs *x509.CertPool
	// KnownHosts is the default known_hosts file for SFTP host keys.
	KnownHosts string

	handles atomic.Int64
}

// InitError reports that the process-wide library could not be built.
// No request can succeed without it, so it is raised with panic.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return "transport: library initialization failed: " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

var (
	initCount    atomic.Int32
	systemRoots  = x509.SystemCertPool
	buildLibrary = sync.OnceValues(newLibrary)
)

func newLibrary() (*Library, error) {
	initCount.Add(1)

	roots, err := systemRoots()
	if err != nil {
		return nil, fmt.Errorf("loading system certificate pool: %w", err)
	}

	lib := &Library{RootCAs: roots}
	if home, err := os.UserHomeDir(); err == nil {
		lib.KnownHosts = filepath.Join(home, ".ssh", "known_hosts")
	}

	proxy.RegisterDialerType("http", newHTTPConnectDialer)
	proxy.RegisterDialerType("https", newHTTPConnectDialer)

	return lib, nil
}

// Global returns the process-wide library, building it on first use.
// It panics with *InitError if the library cannot be built.
func Global() *Library {
	lib, err := buildLibrary()
	if err != nil {
		panic(&InitError{Err: err})
	}
	return lib
}

// Handles returns the number of handles currently open in the process.
func (l *Library) Handles() int64 {
	return l.handles.Load()
}
