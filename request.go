package ftpclient

import (
	"context"
	"time"

	"github.com/embeddedmz/ftpclient/internal/transport"
)

// reset checks that a session is active and restores the request options
// of the handle to their defaults. It must be the first step of every
// operation: options left by a previous request never leak into the next.
func (c *Client) reset() (*transport.Options, error) {
	if c.handle == nil {
		c.logError("session not initialized")
		return nil, ErrSessionInactive
	}
	c.handle.Reset()
	return c.handle.Options(), nil
}

// perform applies the session settings on top of the options set by the
// operation and runs the request.
func (c *Client) perform(op, remote string) error {
	o := c.handle.Options()

	o.Port = c.port
	o.UserPwd = c.user + ":" + c.password

	if c.active {
		o.FTPPort = "-"
		o.UseEPSV = false
		if !c.activeWarned && c.protocol != SFTP {
			c.logWarn("active mode is not supported, data connections use PASV without EPSV")
			c.activeWarned = true
		}
	}

	if c.timeout > 0 {
		o.Timeout = c.timeout
	}

	o.NoSignal = c.noSignal

	if c.proxy != "" {
		o.Proxy = c.proxy
		o.HTTPProxyTunnel = true
		if c.proxyUserPwd != "" {
			o.ProxyUserPwd = c.proxyUserPwd
		}
		if !c.active {
			o.UseEPSV = true
		}
	}

	if c.progressFn != nil {
		fn, p := c.progressFn, &c.progress
		o.Progress = func(dlTotal, dlNow, ulTotal, ulNow int64) error {
			return fn(p, dlTotal, dlNow, ulTotal, ulNow)
		}
		o.NoProgress = false
	}

	switch c.protocol {
	case FTPS, FTPES:
		o.UseSSL = transport.SSLAll
	case SFTP:
		if c.flags.SSHAgent {
			o.SSHAuthTypes = transport.SSHAuthAgent
		}
	}

	if c.sslCertFile != "" {
		o.SSLCert = c.sslCertFile
	}
	if c.sslKeyFile != "" {
		o.SSLKey = c.sslKeyFile
	}
	if c.sslKeyPwd != "" {
		o.KeyPasswd = c.sslKeyPwd
	}

	o.SSLVerifyPeer = !c.insecure
	o.SSLVerifyHost = !c.insecure

	o.MaxRecvSpeed = c.maxRecvSpeed
	o.MaxSendSpeed = c.maxSendSpeed
	o.SSHKnownHosts = c.knownHosts
	if c.trace != nil {
		o.Verbose = true
		o.Trace = c.trace
	}

	start := time.Now()
	err := c.handle.Perform(context.Background())
	elapsed := time.Since(start)
	code := transport.CodeOf(err)

	if c.metrics != nil {
		c.metrics.RecordRequest(op, int(code), elapsed)
		if err == nil {
			info := c.handle.Info()
			if n := info.BytesDown + info.BytesUp; n > 0 {
				c.metrics.RecordTransfer(op, n, elapsed)
			}
		}
	}

	if err != nil {
		return &TransferError{Op: op, Path: remote, Code: code, Err: err}
	}
	return nil
}

// logFailure logs a failed operation with the transfer code when there is
// one.
func (c *Client) logFailure(msg, remote string, err error) {
	if code := CodeOf(err); code != CodeFailedInit {
		c.logError(msg, "server", c.server, "path", remote, "code", int(code), "description", code.String(), "error", err)
		return
	}
	c.logError(msg, "server", c.server, "path", remote, "error", err)
}
