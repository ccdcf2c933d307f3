package transport

import (
	"io"
	"time"
)

// SSLMode selects whether TLS is required on FTP connections.
type SSLMode int

const (
	// SSLNone never negotiates TLS on ftp:// URLs.
	SSLNone SSLMode = iota
	// SSLAll requires TLS on the control and data connections.
	SSLAll
)

// SSHAuth selects the SSH authentication methods tried for sftp:// URLs.
type SSHAuth int

const (
	// SSHAuthPassword authenticates with the password from UserPwd.
	SSHAuthPassword SSHAuth = iota
	// SSHAuthAgent uses the keys of the agent reachable through
	// SSH_AUTH_SOCK, then falls back to the password.
	SSHAuthAgent
)

// ProgressFunc receives transfer progress. Totals are 0 when unknown.
// Returning a non-nil error aborts the transfer with AbortedByCallback.
type ProgressFunc func(dlTotal, dlNow, ulTotal, ulNow int64) error

// ChunkResult is returned by the wildcard chunk callbacks.
type ChunkResult int

const (
	// ChunkOK continues with the item.
	ChunkOK ChunkResult = iota
	// ChunkSkip skips the item's body.
	ChunkSkip
	// ChunkFail aborts the whole transfer with ChunkFailed.
	ChunkFail
)

// FileType classifies entries reported to the chunk callbacks.
type FileType int

const (
	FileTypeFile FileType = iota
	FileTypeDirectory
	FileTypeSymlink
	FileTypeOther
)

func (t FileType) String() string {
	switch t {
	case FileTypeFile:
		return "file"
	case FileTypeDirectory:
		return "dir"
	case FileTypeSymlink:
		return "link"
	default:
		return "other"
	}
}

// FileInfo describes one remote entry.
type FileInfo struct {
	Name    string
	Type    FileType
	Size    int64
	ModTime time.Time
}

// Options is the request-scoped configuration of a Handle. Reset restores
// every field to the value returned by DefaultOptions.
type Options struct {
	// URL of the resource: ftp://, ftps:// or sftp://. A trailing "/"
	// designates a directory.
	URL string
	// Port overrides the URL port when > 0.
	Port int
	// UserPwd is "user:password".
	UserPwd string

	// FTPPort "-" requests active mode.
	FTPPort string
	// UseEPSV prefers EPSV over PASV.
	UseEPSV bool
	// Timeout bounds the whole request, connection included. 0 disables it.
	Timeout time.Duration
	// NoSignal resolves names with the pure Go resolver.
	NoSignal bool

	// Proxy is a socks5://, socks5h://, http:// or https:// proxy URL.
	Proxy string
	// ProxyUserPwd is "user:password" for the proxy.
	ProxyUserPwd string
	// HTTPProxyTunnel tunnels every connection through the proxy.
	HTTPProxyTunnel bool

	// NoProgress disables Progress.
	NoProgress bool
	Progress   ProgressFunc

	UseSSL SSLMode
	// SSHAuthTypes selects the SSH authentication for sftp:// URLs.
	SSHAuthTypes SSHAuth
	// SSHKnownHosts is the known_hosts file used when SSLVerifyHost is set.
	// Empty means the library default.
	SSHKnownHosts string

	// SSLCert and SSLKey are PEM files of a TLS client certificate.
	SSLCert string
	SSLKey  string
	// KeyPasswd decrypts SSLKey when it is an encrypted PEM block.
	KeyPasswd string
	// SSLVerifyPeer validates the server certificate chain.
	SSLVerifyPeer bool
	// SSLVerifyHost validates the server host name (TLS) or host key (SSH).
	SSLVerifyHost bool

	// NoBody skips the transfer body: a directory URL only checks (or
	// creates, see CreateMissingDirs) the directory, a file URL only
	// queries its metadata.
	NoBody bool
	// FileTime requests the modification time of the resource.
	FileTime bool

	// Upload sends Read to the URL instead of downloading it.
	Upload bool
	// Append appends instead of overwriting when uploading.
	Append bool
	// InFileSize is the expected upload size, -1 when unknown.
	InFileSize int64
	Read       io.Reader

	// Write receives downloaded bytes and listings.
	Write io.Writer
	// DirListOnly lists names only.
	DirListOnly bool

	// PostQuote commands run after the transfer succeeded.
	PostQuote []string
	// CreateMissingDirs creates missing directories of the target path.
	CreateMissingDirs bool

	// WildcardMatch treats the last URL segment as a glob pattern.
	WildcardMatch bool
	// ChunkBegin is called for every matched entry. remains is the number
	// of entries left after this one.
	ChunkBegin func(info FileInfo, remains int) ChunkResult
	// ChunkEnd is called after every entry that was not skipped.
	ChunkEnd func() ChunkResult

	// MaxRecvSpeed and MaxSendSpeed cap the transfer rate in bytes per
	// second. 0 means unlimited.
	MaxRecvSpeed int64
	MaxSendSpeed int64

	// Verbose writes the protocol dialogue to Trace.
	Verbose bool
	Trace   io.Writer
}

// DefaultOptions returns the state of a freshly reset handle.
func DefaultOptions() Options {
	return Options{
		UseEPSV:       true,
		NoProgress:    true,
		SSLVerifyPeer: true,
		SSLVerifyHost: true,
		InFileSize:    -1,
	}
}

// Info is what a handle learned during the last Perform.
type Info struct {
	// FileTime is the modification time in Unix seconds, -1 when unknown.
	FileTime int64
	// ContentLength is the size of the resource, -1 when unknown.
	ContentLength int64
	BytesDown     int64
	BytesUp       int64
	TotalTime     time.Duration
}

func defaultInfo() Info {
	return Info{FileTime: -1, ContentLength: -1}
}
