package ftpclient

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedmz/ftpclient/internal/memftp"
	"github.com/embeddedmz/ftpclient/internal/transport"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)

	assert.False(t, c.Active())
	assert.False(t, c.IsActive())
	assert.True(t, c.NoSignal())
	assert.False(t, c.Insecure())
	assert.Zero(t, c.Timeout())
	assert.Empty(t, c.Proxy())
	assert.Nil(t, c.ProgressFunc())
	down, up := c.BandwidthLimit()
	assert.Zero(t, down)
	assert.Zero(t, up)
	assert.NoError(t, c.Close())
}

func TestNewOptionErrors(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name string
		opt  Option
	}{
		{"nil logger", WithLogger(nil)},
		{"nil log func", WithLogFunc(nil)},
		{"missing trace dir", WithTraceDir(filepath.Join(t.TempDir(), "missing"))},
		{"trace dir is a file", WithTraceDir(file)},
		{"zero depth", WithMaxWildcardDepth(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestInitSession(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)

	assert.ErrorIs(t, c.InitSession("", 21, "u", "p", FTP, NoFlags), ErrEmptyHost)
	assert.False(t, c.Active())

	require.NoError(t, c.InitSession("ftp.example.com", 21, "u", "p", FTPES, AllFlags))
	assert.True(t, c.Active())
	assert.NotEmpty(t, c.SessionID())
	assert.Equal(t, "ftp.example.com", c.Server())
	assert.Equal(t, 21, c.Port())
	assert.Equal(t, "u", c.Username())
	assert.Equal(t, "p", c.Password())
	assert.Equal(t, FTPES, c.Protocol())
	assert.Equal(t, AllFlags, c.Flags())

	// A second InitSession does not touch the configuration.
	assert.ErrorIs(t, c.InitSession("other.example.com", 22, "x", "y", SFTP, NoFlags), ErrSessionActive)
	assert.Equal(t, "ftp.example.com", c.Server())
	assert.Equal(t, FTPES, c.Protocol())

	first := c.SessionID()
	require.NoError(t, c.CleanupSession())
	assert.False(t, c.Active())
	assert.ErrorIs(t, c.CleanupSession(), ErrSessionInactive)

	require.NoError(t, c.InitSession("other.example.com", 22, "x", "y", SFTP, NoFlags))
	assert.NotEqual(t, first, c.SessionID())
	require.NoError(t, c.CleanupSession())
}

func TestOperationsWithoutSession(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)
	local := filepath.Join(t.TempDir(), "f")

	ops := map[string]func() error{
		"CreateDir":  func() error { return c.CreateDir("a") },
		"RemoveDir":  func() error { return c.RemoveDir("a") },
		"RemoveFile": func() error { return c.RemoveFile("a") },
		"Info":       func() error { _, err := c.Info("a"); return err },
		"List":       func() error { _, err := c.List("/", true); return err },
		"Download":   func() error { return c.DownloadFile(local, "a") },
		"Bytes":      func() error { _, err := c.DownloadBytes("a"); return err },
		"Upload":     func() error { return c.UploadFile(local, "a", false) },
		"Append":     func() error { return c.AppendFile(local, 0, "a", false) },
		"Wildcard":   func() error { return c.DownloadWildcard(t.TempDir(), "*") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrSessionInactive)
		})
	}
	assert.NoFileExists(t, local)
}

func TestEmptyArguments(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	c := newFTPClient(t, srv)

	assert.ErrorIs(t, c.CreateDir(""), ErrEmptyArgument)
	assert.ErrorIs(t, c.CreateDir("/"), ErrEmptyArgument)
	assert.ErrorIs(t, c.RemoveDir(""), ErrEmptyArgument)
	assert.ErrorIs(t, c.RemoveFile(""), ErrEmptyArgument)
	_, err := c.Info("")
	assert.ErrorIs(t, err, ErrEmptyArgument)
	_, err = c.List("", false)
	assert.ErrorIs(t, err, ErrEmptyArgument)
	assert.ErrorIs(t, c.DownloadFile("", "a"), ErrEmptyArgument)
	assert.ErrorIs(t, c.DownloadFile("a", ""), ErrEmptyArgument)
	assert.ErrorIs(t, c.UploadFile("", "a", false), ErrEmptyArgument)
	assert.ErrorIs(t, c.UploadReader(nil, "a", false), ErrEmptyArgument)
	assert.ErrorIs(t, c.DownloadWildcard("", "*"), ErrEmptyArgument)
	assert.ErrorIs(t, c.DownloadWildcard(t.TempDir(), ""), ErrEmptyArgument)

	assert.Zero(t, srv.Dials())
}

func TestBuildURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		server   string
		protocol Protocol
		remote   string
		want     string
	}{
		{"ftp://127.0.0.1", FTP, "documents/info.txt", "ftp://127.0.0.1//documents//info.txt"},
		{"127.0.0.1", FTP, "documents/info.txt", "ftp://127.0.0.1//documents//info.txt"},
		{"127.0.0.1", FTPES, "a.txt", "ftp://127.0.0.1//a.txt"},
		{"127.0.0.1", FTPS, "a.txt", "ftps://127.0.0.1//a.txt"},
		{"127.0.0.1", SFTP, "home/user/a.txt", "sftp://127.0.0.1//home//user//a.txt"},
		{"sftp://127.0.0.1", SFTP, "/tmp/a.txt", "sftp://127.0.0.1////tmp//a.txt"},
		{"ftp://host", FTP, "my folder/my file.txt", "ftp://host//my%20folder//my%20file.txt"},
		{"FTP://host", FTP, "", "FTP://host//"},
		{"ftp://host", FTP, "upload/", "ftp://host//upload//"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			c := &Client{server: tt.server, protocol: tt.protocol}
			assert.Equal(t, tt.want, c.buildURL(tt.remote))
		})
	}
}

func TestProtocol(t *testing.T) {
	t.Parallel()
	for _, p := range []Protocol{FTP, FTPS, FTPES, SFTP} {
		got, err := ParseProtocol(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParseProtocol(" sftp ")
	require.NoError(t, err)
	assert.Equal(t, SFTP, got)

	_, err = ParseProtocol("gopher")
	assert.Error(t, err)
	assert.Equal(t, "Protocol(9)", Protocol(9).String())
}

func TestSetters(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)

	c.SetProxy("proxy.local:3128")
	assert.Equal(t, "http://proxy.local:3128", c.Proxy())
	c.SetProxy("socks5://proxy.local:1080")
	assert.Equal(t, "socks5://proxy.local:1080", c.Proxy())
	c.SetProxy("")
	assert.Empty(t, c.Proxy())

	c.SetProxyUserPwd("puser:ppass")
	c.SetSSLCertFile("cert.pem")
	c.SetSSLKeyFile("key.pem")
	c.SetSSLKeyPassword("pw")
	c.SetKnownHostsFile("known_hosts")
	c.SetTimeout(5 * time.Second)
	c.SetActive(true)
	c.SetNoSignal(false)
	c.SetInsecure(true)
	c.SetBandwidthLimit(1024, 2048)

	assert.Equal(t, "puser:ppass", c.ProxyUserPwd())
	assert.Equal(t, "cert.pem", c.SSLCertFile())
	assert.Equal(t, "key.pem", c.SSLKeyFile())
	assert.Equal(t, "pw", c.SSLKeyPassword())
	assert.Equal(t, "known_hosts", c.KnownHostsFile())
	assert.Equal(t, 5*time.Second, c.Timeout())
	assert.True(t, c.IsActive())
	assert.False(t, c.NoSignal())
	assert.True(t, c.Insecure())
	down, up := c.BandwidthLimit()
	assert.Equal(t, int64(1024), down)
	assert.Equal(t, int64(2048), up)
}

func TestRequestSettings(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	c := newFTPClient(t, srv)

	c.SetActive(true)
	c.SetTimeout(3 * time.Second)
	c.SetBandwidthLimit(100, 200)
	c.SetSSLCertFile("cert.pem")

	o, err := c.reset()
	require.NoError(t, err)
	o.URL = c.buildURL("")
	o.NoBody = true
	require.NoError(t, c.perform("noop", ""))

	o = c.handle.Options()
	assert.Equal(t, "-", o.FTPPort)
	assert.False(t, o.UseEPSV)
	assert.Equal(t, 3*time.Second, o.Timeout)
	assert.Equal(t, int64(100), o.MaxRecvSpeed)
	assert.Equal(t, int64(200), o.MaxSendSpeed)
	assert.Equal(t, "cert.pem", o.SSLCert)
	assert.Equal(t, testUser+":"+testPassword, o.UserPwd)
	assert.True(t, o.SSLVerifyPeer)
	assert.Equal(t, transport.SSLNone, o.UseSSL)

	// The next request starts from the defaults again.
	o, err = c.reset()
	require.NoError(t, err)
	assert.Empty(t, o.FTPPort)
	assert.Empty(t, o.SSLCert)
	assert.Empty(t, o.URL)
}

func TestRequestSettingsSecure(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)
	require.NoError(t, c.InitSession("127.0.0.1", 1, "u", "p", FTPES, NoFlags))
	defer func() { _ = c.CleanupSession() }()

	c.SetInsecure(true)
	c.SetProxy("127.0.0.1:1")
	c.SetProxyUserPwd("pu:pp")

	o, err := c.reset()
	require.NoError(t, err)
	o.URL = c.buildURL("")
	_ = c.perform("list", "")

	o = c.handle.Options()
	assert.Equal(t, transport.SSLAll, o.UseSSL)
	assert.False(t, o.SSLVerifyPeer)
	assert.False(t, o.SSLVerifyHost)
	assert.Equal(t, "http://127.0.0.1:1", o.Proxy)
	assert.True(t, o.HTTPProxyTunnel)
	assert.Equal(t, "pu:pp", o.ProxyUserPwd)
	assert.True(t, o.UseEPSV)
}

func TestConnectionReuse(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/a.txt", []byte("a"))
	c := newFTPClient(t, srv)

	for j := 0; j < 3; j++ {
		_, err := c.DownloadBytes("a.txt")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, srv.Dials())

	require.NoError(t, c.CleanupSession())
	assert.Equal(t, 1, srv.Quits())
}

func TestLoginDenied(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	c, err := New(memDialer(srv))
	require.NoError(t, err)
	require.NoError(t, c.InitSession("ftp://memftp", 21, testUser, "wrong", FTP, NoFlags))
	defer func() { _ = c.CleanupSession() }()

	_, err = c.List("/", true)
	require.Error(t, err)
	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeLoginDenied, te.Code)
	assert.True(t, te.IsAuth())
	assert.False(t, te.IsTimeout())
	assert.Equal(t, "list", te.Op)
	assert.NotEmpty(t, te.Description())
}

func TestSessionCountConcurrent(t *testing.T) {
	const clients = 8
	base := SessionCount()

	var wg sync.WaitGroup
	ready := make(chan struct{})
	release := make(chan struct{})
	errs := make(chan error, clients)

	for i := 0; i < clients; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv := memftp.NewServer(testUser, testPassword)
			srv.WriteFile("/f.txt", []byte{byte(i)})
			c, err := New(memDialer(srv))
			if err != nil {
				errs <- err
				return
			}
			if err := c.InitSession("ftp://memftp", 21, testUser, testPassword, FTP, NoFlags); err != nil {
				errs <- err
				return
			}
			ready <- struct{}{}
			<-release
			if _, err := c.DownloadBytes("f.txt"); err != nil {
				errs <- err
			}
			if err := c.CleanupSession(); err != nil {
				errs <- err
			}
		}()
	}

	for j := 0; j < clients; j++ {
		<-ready
	}
	assert.GreaterOrEqual(t, SessionCount(), base+clients)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/a.txt", []byte("hello"))
	m := newMockMetrics()
	c := newFTPClient(t, srv, WithMetrics(m))

	_, err := c.DownloadBytes("a.txt")
	require.NoError(t, err)
	_, err = c.DownloadBytes("missing.txt")
	require.Error(t, err)
	require.NoError(t, c.Close())

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, []string{"download:0", "download:78"}, m.requests)
	assert.Equal(t, int64(5), m.transfers["download"])
	assert.Equal(t, []string{"init", "implicit_cleanup", "cleanup"}, m.sessions)
}
