// Package ftpclient implements a session-based FTP, FTPS, FTPES and SFTP
// client.
//
// # Overview
//
// A Client owns one session with one server. Every operation resets the
// session's transfer handle, applies the session settings (credentials,
// proxy, timeout, TLS material, verification) and performs a single
// request. The server connection is kept open between operations as long as
// the settings that identify it do not change.
//
// Supported protocols:
//   - FTP
//   - FTPS (implicit TLS, port 990)
//   - FTPES (explicit TLS with AUTH TLS, port 21)
//   - SFTP (SSH, password, keyboard-interactive or agent authentication)
//
// # Basic Usage
//
//	client, err := ftpclient.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.InitSession("ftp.example.com", 21, "user", "pass", ftpclient.FTP, ftpclient.NoFlags); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.CleanupSession()
//
//	if err := client.DownloadFile("/tmp/info.txt", "documents/info.txt"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Remote Paths
//
// Remote paths are relative to the server root given to InitSession. Each
// path segment is taken from the root: "documents/info.txt" designates
// /documents/info.txt whatever the login directory of the user is.
//
// # Secure Sessions
//
// FTPS and FTPES require TLS on the control and data connections. Server
// certificates are checked against the system pool; SFTP host keys against
// ~/.ssh/known_hosts or the file given to SetKnownHostsFile. SetInsecure
// disables both checks for tests against self-signed servers.
//
//	client.SetSSLCertFile("client.pem")
//	client.SetSSLKeyFile("client.key")
//	client.SetSSLKeyPassword("secret")
//
// # Wildcard Downloads
//
// DownloadWildcard fetches every entry matching a pattern in the last path
// segment, and recurses into matched directories when the pattern ends with
// "*":
//
//	err := client.DownloadWildcard("/tmp/backup", "exports/*")
//
// # Error Handling
//
// Precondition failures are sentinel errors (ErrEmptyArgument,
// ErrSessionInactive, ...) returned before any network activity. Transfer
// failures are *TransferError values carrying the transport outcome code:
//
//	if err := client.RemoveFile("old.log"); err != nil {
//	    var te *ftpclient.TransferError
//	    if errors.As(err, &te) {
//	        fmt.Printf("%s: %s (code %d)\n", te.Op, te.Description(), te.Code)
//	    }
//	}
//
// IsNotFound and CodeOf inspect an error without type assertions.
//
// # Logging
//
// Sessions initialized with Flags.Log report errors and warnings through
// the logger set by WithLogger or WithLogFunc. The default logger discards
// everything. WithTraceDir additionally records the protocol dialogue.
package ftpclient
