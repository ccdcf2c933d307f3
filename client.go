package ftpclient

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/embeddedmz/ftpclient/internal/transport"
)

// Protocol selects how the client talks to the server.
type Protocol int

const (
	// FTP is plain FTP.
	FTP Protocol = iota
	// FTPS is FTP over implicit TLS, usually on port 990.
	FTPS
	// FTPES is FTP upgraded to TLS with AUTH TLS, usually on port 21.
	FTPES
	// SFTP is the SSH file transfer protocol.
	SFTP
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case FTP:
		return "FTP"
	case FTPS:
		return "FTPS"
	case FTPES:
		return "FTPES"
	case SFTP:
		return "SFTP"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// ParseProtocol parses a protocol name, case-insensitively.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FTP":
		return FTP, nil
	case "FTPS":
		return FTPS, nil
	case "FTPES":
		return FTPES, nil
	case "SFTP":
		return SFTP, nil
	default:
		return FTP, fmt.Errorf("unknown protocol %q", s)
	}
}

// Flags are the session settings fixed by InitSession.
type Flags struct {
	// Log enables error and warning messages.
	Log bool
	// SSHAgent authenticates SFTP sessions with the keys of the agent
	// reachable through SSH_AUTH_SOCK before trying the password.
	SSHAgent bool
}

var (
	// NoFlags disables every setting.
	NoFlags = Flags{}
	// AllFlags enables every setting.
	AllFlags = Flags{Log: true, SSHAgent: true}
)

// DefaultMaxWildcardDepth is the default directory recursion limit of
// DownloadWildcard.
const DefaultMaxWildcardDepth = 32

// Client runs FTP, FTPS, FTPES and SFTP operations against one server.
//
// A Client is configured once with InitSession. Each operation then resets
// the underlying transfer handle, applies the session settings and performs
// a single request; the server connection is kept between operations.
//
// A Client is not safe for concurrent use. Use one Client per goroutine.
type Client struct {
	// handle is non-nil exactly while a session is active
	handle     *transport.Handle
	handleOpts []transport.HandleOption

	// fixed at InitSession
	server    string
	port      int
	user      string
	password  string
	protocol  Protocol
	flags     Flags
	sessionID string

	// mutable, applied on every request
	proxy        string
	proxyUserPwd string
	sslCertFile  string
	sslKeyFile   string
	sslKeyPwd    string
	knownHosts   string
	timeout      time.Duration
	active       bool
	activeWarned bool
	noSignal     bool
	insecure     bool
	maxRecvSpeed int64
	maxSendSpeed int64

	progressFn ProgressFunc
	progress   ProgressContext

	baseLogger       *slog.Logger
	logger           *slog.Logger
	traceDir         string
	trace            *lumberjack.Logger
	metrics          MetricsCollector
	maxWildcardDepth int
}

// New creates a client without an active session.
//
// Example:
//
//	client, err := ftpclient.New(ftpclient.WithLogFunc(func(msg string) {
//	    log.Println(msg)
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.InitSession("ftp.example.com", 21, "user", "pass", ftpclient.FTP, ftpclient.AllFlags); err != nil {
//	    log.Fatal(err)
//	}
func New(options ...Option) (*Client, error) {
	c := &Client{
		noSignal:         true,
		baseLogger:       discardLogger(),
		maxWildcardDepth: DefaultMaxWildcardDepth,
	}
	c.progress.Client = c

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	c.logger = c.baseLogger
	return c, nil
}

// InitSession starts a session. host may carry a scheme ("ftp://host"); a
// bare host gets the scheme of protocol. The connection itself is opened
// by the first operation.
func (c *Client) InitSession(host string, port int, user, password string, protocol Protocol, flags Flags) error {
	if host == "" {
		c.logError("empty hostname")
		return ErrEmptyHost
	}
	if c.handle != nil {
		c.logError("session already initialized", "session_id", c.sessionID)
		return ErrSessionActive
	}

	c.server = host
	c.port = port
	c.user = user
	c.password = password
	c.protocol = protocol
	c.flags = flags
	c.sessionID = uuid.NewString()
	c.logger = c.baseLogger.With("session_id", c.sessionID, "protocol", protocol.String())

	if flags.Log && c.traceDir != "" {
		c.trace = &lumberjack.Logger{
			Filename:   filepath.Join(c.traceDir, "ftpclient-trace.log"),
			MaxSize:    10,
			MaxBackups: 3,
		}
	}

	c.handle = transport.New(c.handleOpts...)
	if c.metrics != nil {
		c.metrics.RecordSession("init")
	}
	return nil
}

// CleanupSession ends the session, closing the server connection.
// It returns ErrSessionInactive when no session is active.
func (c *Client) CleanupSession() error {
	if c.handle == nil {
		c.logError("session not initialized")
		return ErrSessionInactive
	}

	err := c.handle.Close()
	c.handle = nil
	if err != nil {
		c.logWarn("closing connection", "error", err)
	}
	if c.trace != nil {
		if terr := c.trace.Close(); terr != nil {
			c.logWarn("closing trace file", "error", terr)
		}
		c.trace = nil
	}
	if c.metrics != nil {
		c.metrics.RecordSession("cleanup")
	}
	c.logger = c.baseLogger
	return nil
}

// Close releases the client. A session still active is cleaned up, with a
// warning since CleanupSession should have been called.
func (c *Client) Close() error {
	if c.handle == nil {
		return nil
	}
	c.logWarn("object was closed before calling CleanupSession")
	if c.metrics != nil {
		c.metrics.RecordSession("implicit_cleanup")
	}
	return c.CleanupSession()
}

// Active reports whether a session is active.
func (c *Client) Active() bool {
	return c.handle != nil
}

// SessionID returns the identifier of the current session, or of the last
// one once it has been cleaned up.
func (c *Client) SessionID() string {
	return c.sessionID
}

// SessionCount returns the number of sessions active in the process.
func SessionCount() int64 {
	return transport.Global().Handles()
}

// Server returns the host given to InitSession.
func (c *Client) Server() string { return c.server }

// Port returns the port given to InitSession.
func (c *Client) Port() int { return c.port }

// Username returns the user given to InitSession.
func (c *Client) Username() string { return c.user }

// Password returns the password given to InitSession.
func (c *Client) Password() string { return c.password }

// Protocol returns the protocol given to InitSession.
func (c *Client) Protocol() Protocol { return c.protocol }

// Flags returns the flags given to InitSession.
func (c *Client) Flags() Flags { return c.flags }

// SetProxy sets the proxy used by the next requests. "host:port" means an
// HTTP proxy; socks5:// and https:// URLs are accepted too. An empty string
// disables the proxy.
func (c *Client) SetProxy(proxy string) {
	if proxy != "" && !strings.Contains(proxy, "://") {
		proxy = "http://" + proxy
	}
	c.proxy = proxy
}

// Proxy returns the proxy URL.
func (c *Client) Proxy() string { return c.proxy }

// SetProxyUserPwd sets the "user:password" credentials of the proxy.
func (c *Client) SetProxyUserPwd(userPwd string) { c.proxyUserPwd = userPwd }

// ProxyUserPwd returns the proxy credentials.
func (c *Client) ProxyUserPwd() string { return c.proxyUserPwd }

// SetSSLCertFile sets the PEM client certificate presented to FTPS servers.
func (c *Client) SetSSLCertFile(path string) { c.sslCertFile = path }

// SSLCertFile returns the client certificate path.
func (c *Client) SSLCertFile() string { return c.sslCertFile }

// SetSSLKeyFile sets the PEM private key of the client certificate. When
// empty, the key is read from the certificate file.
func (c *Client) SetSSLKeyFile(path string) { c.sslKeyFile = path }

// SSLKeyFile returns the client key path.
func (c *Client) SSLKeyFile() string { return c.sslKeyFile }

// SetSSLKeyPassword sets the passphrase of an encrypted client key.
func (c *Client) SetSSLKeyPassword(pwd string) { c.sslKeyPwd = pwd }

// SSLKeyPassword returns the client key passphrase.
func (c *Client) SSLKeyPassword() string { return c.sslKeyPwd }

// SetKnownHostsFile sets the known_hosts file verifying SFTP host keys.
// The default is ~/.ssh/known_hosts.
func (c *Client) SetKnownHostsFile(path string) { c.knownHosts = path }

// KnownHostsFile returns the known_hosts path, empty for the default.
func (c *Client) KnownHostsFile() string { return c.knownHosts }

// SetTimeout bounds every request, connection included. 0 disables it.
func (c *Client) SetTimeout(timeout time.Duration) { c.timeout = timeout }

// Timeout returns the request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// SetActive requests active mode for FTP data connections. The transfer
// library only opens data connections itself, so active mode is approximated
// by plain PASV without EPSV; the first request made in that mode logs a
// warning.
func (c *Client) SetActive(active bool) { c.active = active }

// IsActive reports whether active mode is requested.
func (c *Client) IsActive() bool { return c.active }

// SetNoSignal selects the pure Go DNS resolver. It is on by default.
func (c *Client) SetNoSignal(noSignal bool) { c.noSignal = noSignal }

// NoSignal reports whether the pure Go resolver is used.
func (c *Client) NoSignal() bool { return c.noSignal }

// SetInsecure disables TLS certificate and SSH host key verification. Only
// meant for tests against self-signed servers.
func (c *Client) SetInsecure(insecure bool) { c.insecure = insecure }

// Insecure reports whether verification is disabled.
func (c *Client) Insecure() bool { return c.insecure }

// SetBandwidthLimit caps the download and upload rates in bytes per second.
// 0 means unlimited.
func (c *Client) SetBandwidthLimit(down, up int64) {
	c.maxRecvSpeed = down
	c.maxSendSpeed = up
}

// BandwidthLimit returns the download and upload rate caps.
func (c *Client) BandwidthLimit() (down, up int64) {
	return c.maxRecvSpeed, c.maxSendSpeed
}

// SetProgressFunc registers fn, called during transfers with owner in its
// ProgressContext. A nil fn disables progress reporting.
func (c *Client) SetProgressFunc(owner any, fn ProgressFunc) {
	c.progress.Owner = owner
	c.progressFn = fn
}

// ProgressFunc returns the registered progress callback.
func (c *Client) ProgressFunc() ProgressFunc { return c.progressFn }

// buildURL returns the URL of a path relative to the server root. Every "/"
// after the scheme is doubled so that each segment is taken from the root,
// and spaces are escaped.
//
//	"ftp://host" + "documents/info.txt" -> "ftp://host//documents//info.txt"
func (c *Client) buildURL(remote string) string {
	raw := c.server + "/" + remote

	scheme := ""
	if i := strings.Index(raw, "://"); i > 0 {
		switch strings.ToLower(raw[:i]) {
		case "ftp", "ftps", "sftp":
			scheme, raw = raw[:i+3], raw[i+3:]
		}
	}
	raw = strings.ReplaceAll(raw, "/", "//")
	raw = strings.ReplaceAll(raw, " ", "%20")

	if scheme == "" {
		switch c.protocol {
		case FTPS:
			scheme = "ftps://"
		case SFTP:
			scheme = "sftp://"
		default:
			scheme = "ftp://"
		}
	}
	return scheme + raw
}

func (c *Client) logError(msg string, args ...any) {
	if c.flags.Log {
		c.logger.Error(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.flags.Log {
		c.logger.Warn(msg, args...)
	}
}
