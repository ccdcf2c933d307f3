package ftpclient

import (
	"errors"
	"fmt"

	"github.com/embeddedmz/ftpclient/internal/transport"
)

// Precondition errors. They are returned before any network activity.
var (
	// ErrEmptyArgument is returned when a required path argument is empty.
	ErrEmptyArgument = errors.New("ftpclient: empty argument")

	// ErrEmptyHost is returned by InitSession when no host is given.
	ErrEmptyHost = errors.New("ftpclient: empty hostname")

	// ErrSessionActive is returned by InitSession when a session is already
	// active. Call CleanupSession first.
	ErrSessionActive = errors.New("ftpclient: session already initialized")

	// ErrSessionInactive is returned by every operation when no session is
	// active.
	ErrSessionInactive = errors.New("ftpclient: session not initialized")

	// ErrNotDirectory is returned by DownloadWildcard when the local
	// destination is not an existing directory.
	ErrNotDirectory = errors.New("ftpclient: local destination is not a directory")

	// ErrUnsupported is returned for operations the session protocol cannot
	// perform, such as wildcard downloads over SFTP.
	ErrUnsupported = errors.New("ftpclient: operation not supported by protocol")

	// ErrInvalidOffset is returned by AppendFile when the offset is not
	// inside the local file.
	ErrInvalidOffset = errors.New("ftpclient: offset outside of local file")

	// ErrInfoUnavailable is returned by Info when the server did not report
	// both the modification time and the size of the file.
	ErrInfoUnavailable = errors.New("ftpclient: file time or size unavailable")

	// ErrWildcardDepth is returned by DownloadWildcard when the remote tree
	// is deeper than the configured maximum.
	ErrWildcardDepth = errors.New("ftpclient: wildcard recursion too deep")
)

// Code is the outcome of a transfer as reported by the transport.
type Code = transport.Code

// Transfer outcome codes.
const (
	CodeOK                     = transport.OK
	CodeUnsupportedProtocol    = transport.UnsupportedProtocol
	CodeFailedInit             = transport.FailedInit
	CodeURLMalformat           = transport.URLMalformat
	CodeCouldntResolveProxy    = transport.CouldntResolveProxy
	CodeCouldntResolveHost     = transport.CouldntResolveHost
	CodeCouldntConnect         = transport.CouldntConnect
	CodeWeirdServerReply       = transport.WeirdServerReply
	CodeRemoteAccessDenied     = transport.RemoteAccessDenied
	CodeFTPCouldntRetrFile     = transport.FTPCouldntRetrFile
	CodeQuoteError             = transport.QuoteError
	CodeWriteError             = transport.WriteError
	CodeUploadFailed           = transport.UploadFailed
	CodeReadError              = transport.ReadError
	CodeOperationTimedout      = transport.OperationTimedout
	CodeSSLConnectError        = transport.SSLConnectError
	CodeAbortedByCallback      = transport.AbortedByCallback
	CodeSSLCertProblem         = transport.SSLCertProblem
	CodePeerFailedVerification = transport.PeerFailedVerification
	CodeLoginDenied            = transport.LoginDenied
	CodeRemoteFileNotFound     = transport.RemoteFileNotFound
	CodeSSHError               = transport.SSHError
	CodeChunkFailed            = transport.ChunkFailed
)

// TransferError is returned when the transport reports a failure for a
// request. It carries the outcome code and the underlying cause.
type TransferError struct {
	// Op is the client operation, e.g. "mkdir" or "download".
	Op string

	// Path is the remote path the operation was called with.
	Path string

	// Code is the transport outcome.
	Code Code

	// Err is the transport error.
	Err error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ftpclient: %s %s failed: %s (code %d)", e.Op, e.Path, e.Code, int(e.Code))
	}
	return fmt.Sprintf("ftpclient: %s %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the transport error.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// Description returns the human-readable description of the outcome code.
func (e *TransferError) Description() string {
	return e.Code.String()
}

// IsTimeout returns true if the request exceeded the session timeout.
func (e *TransferError) IsTimeout() bool {
	return e.Code == CodeOperationTimedout
}

// IsAuth returns true if the server rejected the credentials or could not
// be verified.
func (e *TransferError) IsAuth() bool {
	return e.Code == CodeLoginDenied || e.Code == CodePeerFailedVerification
}

// CodeOf returns the transfer outcome carried by err: CodeOK for nil,
// CodeFailedInit for errors that did not come from a transfer.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Code
	}
	return transport.CodeOf(err)
}

// IsNotFound reports whether err means the remote file or directory does
// not exist.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeRemoteFileNotFound
}
