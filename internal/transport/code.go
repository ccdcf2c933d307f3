package transport

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/textproto"
	"os"
	"strconv"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Code is the raw outcome of a Perform call.
type Code int

// Outcome codes. The numeric values are stable and are what gets logged.
const (
	OK                     Code = 0
	UnsupportedProtocol    Code = 1
	FailedInit             Code = 2
	URLMalformat           Code = 3
	CouldntResolveProxy    Code = 5
	CouldntResolveHost     Code = 6
	CouldntConnect         Code = 7
	WeirdServerReply       Code = 8
	RemoteAccessDenied     Code = 9
	FTPCouldntRetrFile     Code = 19
	QuoteError             Code = 21
	WriteError             Code = 23
	UploadFailed           Code = 25
	ReadError              Code = 26
	OperationTimedout      Code = 28
	SSLConnectError        Code = 35
	FileCouldntReadFile    Code = 37
	AbortedByCallback      Code = 42
	BadFunctionArgument    Code = 43
	SendError              Code = 55
	RecvError              Code = 56
	SSLCertProblem         Code = 58
	PeerFailedVerification Code = 60
	LoginDenied            Code = 67
	RemoteFileNotFound     Code = 78
	SSHError               Code = 79
	ChunkFailed            Code = 88
)

var descriptions = map[Code]string{
	OK:                     "No error",
	UnsupportedProtocol:    "Unsupported protocol",
	FailedInit:             "Failed initialization",
	URLMalformat:           "URL using bad/illegal format or missing URL",
	CouldntResolveProxy:    "Couldn't resolve proxy name",
	CouldntResolveHost:     "Couldn't resolve host name",
	CouldntConnect:         "Couldn't connect to server",
	WeirdServerReply:       "Weird server reply",
	RemoteAccessDenied:     "Access denied to remote resource",
	FTPCouldntRetrFile:     "Couldn't retrieve file",
	QuoteError:             "Quote command returned error",
	WriteError:             "Failed writing received data to disk/application",
	UploadFailed:           "Upload failed",
	ReadError:              "Failed to open/read local data from file/application",
	OperationTimedout:      "Timeout was reached",
	SSLConnectError:        "SSL connect error",
	FileCouldntReadFile:    "Couldn't read a file:// file",
	AbortedByCallback:      "Operation was aborted by an application callback",
	BadFunctionArgument:    "A function was given a bad argument",
	SendError:              "Failed sending data to the peer",
	RecvError:              "Failure when receiving data from the peer",
	SSLCertProblem:         "Problem with the local SSL certificate",
	PeerFailedVerification: "SSL peer certificate or SSH remote key was not OK",
	LoginDenied:            "Login denied",
	RemoteFileNotFound:     "Remote file not found",
	SSHError:               "Error in the SSH layer",
	ChunkFailed:            "Chunk callback failed",
}

// String returns the human-readable description of c.
func (c Code) String() string {
	if d, ok := descriptions[c]; ok {
		return d
	}
	return "Unknown error (" + strconv.Itoa(int(c)) + ")"
}

// Error is returned by Perform when the outcome is not OK.
type Error struct {
	Code Code
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (code %d)", e.Code, int(e.Code))
	}
	return fmt.Sprintf("%s (code %d): %v", e.Code, int(e.Code), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the outcome code from err. A nil error is OK; an error
// that did not originate from Perform maps to FailedInit.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return FailedInit
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// errAborted is returned by the progress wrappers when the callback asks to
// stop the transfer.
var errAborted = errors.New("transfer aborted by progress callback")

// writeError marks failures of the caller-supplied sink.
type writeError struct{ err error }

func (e *writeError) Error() string { return "write callback: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// readError marks failures of the caller-supplied upload source.
type readError struct{ err error }

func (e *readError) Error() string { return "read callback: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// classify maps an error produced while talking to a server to an outcome
// code. fallback is used when nothing more specific applies.
func classify(err error, fallback Code) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, errAborted) {
		return newError(AbortedByCallback, err)
	}
	var we *writeError
	if errors.As(err, &we) {
		return newError(WriteError, err)
	}
	var re *readError
	if errors.As(err, &re) {
		return newError(ReadError, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return newError(OperationTimedout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newError(OperationTimedout, err)
	}

	var tp *textproto.Error
	if errors.As(err, &tp) {
		switch {
		case tp.Code == 530 || tp.Code == 331 || tp.Code == 332:
			return newError(LoginDenied, err)
		case tp.Code == 550 || tp.Code == 450:
			if fallback == QuoteError {
				return newError(QuoteError, err)
			}
			return newError(RemoteFileNotFound, err)
		case tp.Code >= 400:
			return newError(fallback, err)
		default:
			return newError(WeirdServerReply, err)
		}
	}

	var unknownAuth x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	if errors.As(err, &unknownAuth) || errors.As(err, &hostname) || errors.As(err, &invalid) ||
		errors.As(err, &keyErr) || errors.As(err, &revoked) {
		return newError(PeerFailedVerification, err)
	}

	var status *sftp.StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case uint32(sftp.ErrSSHFxNoSuchFile):
			return newError(RemoteFileNotFound, err)
		case uint32(sftp.ErrSSHFxPermissionDenied):
			return newError(RemoteAccessDenied, err)
		}
		if fallback == QuoteError {
			return newError(QuoteError, err)
		}
		return newError(SSHError, err)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return newError(RemoteFileNotFound, err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return newError(RemoteAccessDenied, err)
	}
	return newError(fallback, err)
}
