// Package config loads the server profiles used by the ftpclient command
// and the live test suite.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/embeddedmz/ftpclient"
)

var (
	// ErrConfigNotFound is returned when no configuration file exists.
	ErrConfigNotFound = errors.New("configuration file not found")
	// ErrConfigInvalid is returned for unreadable or inconsistent files.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrProfileNotFound is returned by Profile for an unknown name.
	ErrProfileNotFound = errors.New("profile not found")
)

// Config is the complete configuration file.
type Config struct {
	// Tests selects the live test groups to run.
	Tests Tests `mapstructure:"tests"`

	// Local holds client-side files.
	Local Local `mapstructure:"local"`

	// Proxy is the HTTP proxy used by the proxy tests.
	Proxy Proxy `mapstructure:"http_proxy"`

	// FTP is the FTP, FTPS or FTPES server profile.
	FTP Server `mapstructure:"ftp"`

	// SFTP is the SFTP server profile.
	SFTP Server `mapstructure:"sftp"`
}

// Tests enables the live test groups.
type Tests struct {
	FTP       bool `mapstructure:"ftp"`
	SFTP      bool `mapstructure:"sftp"`
	HTTPProxy bool `mapstructure:"http_proxy"`
}

// Local holds paths on the client machine.
type Local struct {
	TraceDir    string `mapstructure:"trace_dir"`
	SSLCertFile string `mapstructure:"ssl_cert_file"`
	SSLKeyFile  string `mapstructure:"ssl_key_file"`
	SSLKeyPwd   string `mapstructure:"ssl_key_pwd"`
	KnownHosts  string `mapstructure:"known_hosts"`
}

// Proxy describes an HTTP proxy.
type Proxy struct {
	// Host is a working proxy, "host:port".
	Host string `mapstructure:"host"`
	// HostInvalid is an address where no proxy answers.
	HostInvalid string `mapstructure:"host_invalid"`
	UserPwd     string `mapstructure:"user_pwd"`
}

// Server is a server profile.
type Server struct {
	// Protocol is "ftp", "ftps", "ftpes" or "sftp".
	Protocol string `mapstructure:"protocol"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Insecure disables certificate and host key verification.
	Insecure bool `mapstructure:"insecure"`

	// RemoteFile is an existing file used by download tests.
	RemoteFile string `mapstructure:"remote_file"`
	// RemoteUploadFolder receives uploads. It always ends with "/".
	RemoteUploadFolder string `mapstructure:"remote_upload_folder"`
	// RemoteDownloadFolder is the wildcard download source. It always ends
	// with "/*".
	RemoteDownloadFolder string `mapstructure:"remote_download_folder"`
}

// ProtocolValue returns the parsed protocol of the profile.
func (s *Server) ProtocolValue() (ftpclient.Protocol, error) {
	return ftpclient.ParseProtocol(s.Protocol)
}

// normalize completes the remote folders: "dir" becomes "dir/" for uploads
// and "dir/*" for downloads.
func (s *Server) normalize() {
	if s.RemoteUploadFolder != "" && !strings.HasSuffix(s.RemoteUploadFolder, "/") {
		s.RemoteUploadFolder += "/"
	}
	if s.RemoteDownloadFolder != "" {
		if strings.HasSuffix(s.RemoteDownloadFolder, "/") {
			s.RemoteDownloadFolder += "*"
		} else {
			s.RemoteDownloadFolder += "/*"
		}
	}
}

// Validate checks that the profile can open a session.
func (s *Server) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrConfigInvalid)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrConfigInvalid, s.Port)
	}
	if _, err := s.ProtocolValue(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

// Validate checks that every enabled test group has what it needs.
func (c *Config) Validate() error {
	if c.Tests.FTP {
		if err := c.FTP.Validate(); err != nil {
			return fmt.Errorf("ftp: %w", err)
		}
		if p, _ := c.FTP.ProtocolValue(); p == ftpclient.SFTP {
			return fmt.Errorf("%w: ftp: protocol cannot be sftp", ErrConfigInvalid)
		}
	}
	if c.Tests.SFTP {
		if err := c.SFTP.Validate(); err != nil {
			return fmt.Errorf("sftp: %w", err)
		}
		if p, _ := c.SFTP.ProtocolValue(); p != ftpclient.SFTP {
			return fmt.Errorf("%w: sftp: protocol must be sftp", ErrConfigInvalid)
		}
	}
	if c.Tests.HTTPProxy && (c.Proxy.Host == "" || c.Proxy.HostInvalid == "") {
		return fmt.Errorf("%w: http_proxy: host and host_invalid are required", ErrConfigInvalid)
	}
	return nil
}

// Profile returns the server profile called name: "ftp" or "sftp".
func (c *Config) Profile(name string) (*Server, error) {
	switch strings.ToLower(name) {
	case "ftp":
		return &c.FTP, nil
	case "sftp":
		return &c.SFTP, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
