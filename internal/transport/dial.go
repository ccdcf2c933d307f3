package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// dialer opens TCP connections to the target, through the configured
// proxy if any.
type dialer struct {
	base    *net.Dialer
	via     proxy.ContextDialer
	proxied bool
}

func newDialer(o *Options) (*dialer, error) {
	base := &net.Dialer{Timeout: o.Timeout, KeepAlive: 30 * time.Second}
	if o.NoSignal {
		base.Resolver = &net.Resolver{PreferGo: true}
	}
	d := &dialer{base: base, via: base}
	if o.Proxy == "" {
		return d, nil
	}

	raw := o.Proxy
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, newError(CouldntResolveProxy, fmt.Errorf("invalid proxy %q", o.Proxy))
	}
	if o.ProxyUserPwd != "" {
		user, pass, _ := strings.Cut(o.ProxyUserPwd, ":")
		u.User = url.UserPassword(user, pass)
	}

	// Make sure the http/https dialer types are registered.
	Global()

	pd, err := proxy.FromURL(u, base)
	if err != nil {
		return nil, newError(UnsupportedProtocol, fmt.Errorf("proxy %q: %w", o.Proxy, err))
	}
	cd, ok := pd.(proxy.ContextDialer)
	if !ok {
		cd = contextDialer{pd}
	}
	d.via = cd
	d.proxied = true
	return d, nil
}

func (d *dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.via.DialContext(ctx, network, addr)
	if err != nil {
		return nil, d.classify(err)
	}
	return conn, nil
}

// classify maps connection establishment failures.
func (d *dialer) classify(err error) *Error {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newError(OperationTimedout, err)
	case errors.As(err, &dnsErr) && d.proxied:
		return newError(CouldntResolveProxy, err)
	case errors.As(err, &dnsErr):
		return newError(CouldntResolveHost, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newError(OperationTimedout, err)
	}
	return newError(CouldntConnect, err)
}

// contextDialer adapts a proxy.Dialer without context support.
type contextDialer struct {
	proxy.Dialer
}

func (c contextDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := c.Dial(network, addr)
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// httpConnectDialer tunnels connections through an HTTP proxy with the
// CONNECT method.
type httpConnectDialer struct {
	proxyURL *url.URL
	forward  proxy.Dialer
}

func newHTTPConnectDialer(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	return &httpConnectDialer{proxyURL: u, forward: forward}, nil
}

func (d *httpConnectDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *httpConnectDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	proxyAddr := d.proxyURL.Host
	if d.proxyURL.Port() == "" {
		port := "1080"
		if d.proxyURL.Scheme == "https" {
			port = "443"
		}
		proxyAddr = net.JoinHostPort(d.proxyURL.Hostname(), port)
	}

	var conn net.Conn
	var err error
	if cd, ok := d.forward.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", proxyAddr)
	} else {
		conn, err = d.forward.Dial("tcp", proxyAddr)
	}
	if err != nil {
		return nil, err
	}

	if d.proxyURL.Scheme == "https" {
		tconn := tls.Client(conn, &tls.Config{ServerName: d.proxyURL.Hostname(), RootCAs: Global().RootCAs})
		if err := tconn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		conn = tconn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if u := d.proxyURL.User; u != nil {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy CONNECT %s: %w", addr, err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy CONNECT %s: %w", addr, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy CONNECT %s: %s", addr, resp.Status)
	}

	_ = conn.SetDeadline(time.Time{})
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn drains bytes the proxy sent right after its CONNECT reply.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
