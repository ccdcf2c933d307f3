package transport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/embeddedmz/ftpclient/internal/sftptest"
)

func newSFTPHandle(t *testing.T) (*Handle, *sftptest.Server) {
	t.Helper()
	srv := sftptest.NewServer(t, testUser, testPassword)
	h := New()
	t.Cleanup(func() { _ = h.Close() })
	return h, srv
}

// prepareSFTP configures a request to srv that skips host key checks.
func prepareSFTP(h *Handle, srv *sftptest.Server, p string) *Options {
	o := prepare(h, fmt.Sprintf("sftp://%s/%s", srv.Addr, p))
	o.SSLVerifyHost = false
	return o
}

func TestSFTPDownload(t *testing.T) {
	h, srv := newSFTPHandle(t)
	srv.WriteFile(t, "/documents/info.txt", []byte("hello sftp"))
	fixtureLogins := srv.Logins()

	var buf bytes.Buffer
	o := prepareSFTP(h, srv, "/documents//info.txt")
	o.Write = &buf
	o.FileTime = true
	require.NoError(t, h.Perform(context.Background()))

	assert.Equal(t, "hello sftp", buf.String())
	assert.Equal(t, int64(10), h.Info().ContentLength)
	assert.Greater(t, h.Info().FileTime, int64(0))

	o = prepareSFTP(h, srv, "/documents//missing.txt")
	o.Write = &bytes.Buffer{}
	requireCode(t, RemoteFileNotFound, h.Perform(context.Background()))

	// Both requests used the same session.
	assert.Equal(t, fixtureLogins+1, srv.Logins())
}

func TestSFTPUpload(t *testing.T) {
	h, srv := newSFTPHandle(t)

	o := prepareSFTP(h, srv, "/upload//nested//file.bin")
	o.Upload = true
	o.Read = strings.NewReader("payload")
	requireCode(t, RemoteFileNotFound, h.Perform(context.Background()))

	o = prepareSFTP(h, srv, "/upload//nested//file.bin")
	o.Upload = true
	o.CreateMissingDirs = true
	o.Read = strings.NewReader("payload")
	require.NoError(t, h.Perform(context.Background()))

	got, err := srv.ReadFile(t, "/upload/nested/file.bin")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	assert.Equal(t, int64(7), h.Info().BytesUp)
}

func TestSFTPListAndQuote(t *testing.T) {
	h, srv := newSFTPHandle(t)
	srv.WriteFile(t, "/pub/a.txt", []byte("a"))
	srv.WriteFile(t, "/pub/b.txt", []byte("b"))

	run := func(cmds ...string) error {
		o := prepareSFTP(h, srv, "/pub//")
		o.NoBody = true
		o.PostQuote = cmds
		return h.Perform(context.Background())
	}

	require.NoError(t, run(`mkdir "/pub/my folder"`))
	fi, err := srv.Stat(t, "/pub/my folder")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	var buf bytes.Buffer
	o := prepareSFTP(h, srv, "/pub//")
	o.Write = &buf
	o.DirListOnly = true
	require.NoError(t, h.Perform(context.Background()))
	names := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "my folder"}, names)

	require.NoError(t, run("rename a.txt c.txt"))
	_, err = srv.Stat(t, "/pub/c.txt")
	require.NoError(t, err)

	require.NoError(t, run("rm c.txt", `rmdir "my folder"`))
	_, err = srv.Stat(t, "/pub/c.txt")
	assert.True(t, os.IsNotExist(err))
	_, err = srv.Stat(t, "/pub/my folder")
	assert.True(t, os.IsNotExist(err))

	requireCode(t, QuoteError, run("frobnicate x"))
	requireCode(t, QuoteError, run("mkdir"))
	require.NoError(t, run("*rm nothing-here"))
}

func TestSFTPStat(t *testing.T) {
	h, srv := newSFTPHandle(t)
	srv.WriteFile(t, "/f.bin", make([]byte, 321))

	o := prepareSFTP(h, srv, "/f.bin")
	o.NoBody = true
	o.FileTime = true
	require.NoError(t, h.Perform(context.Background()))
	assert.Equal(t, int64(321), h.Info().ContentLength)
	assert.Greater(t, h.Info().FileTime, int64(0))

	o = prepareSFTP(h, srv, "/")
	o.NoBody = true
	require.NoError(t, h.Perform(context.Background()))

	o = prepareSFTP(h, srv, "/nope//")
	o.NoBody = true
	require.Error(t, h.Perform(context.Background()))
}

func TestSFTPAuthentication(t *testing.T) {
	h, srv := newSFTPHandle(t)

	o := prepareSFTP(h, srv, "/")
	o.NoBody = true
	o.UserPwd = testUser + ":wrong"
	requireCode(t, LoginDenied, h.Perform(context.Background()))
	assert.Equal(t, 0, srv.Logins())
}

func TestSFTPHostKeyVerification(t *testing.T) {
	h, srv := newSFTPHandle(t)
	dir := t.TempDir()

	t.Run("trusted", func(t *testing.T) {
		o := prepare(h, fmt.Sprintf("sftp://%s//", srv.Addr))
		o.NoBody = true
		o.SSHKnownHosts = srv.WriteKnownHosts(t, dir)
		require.NoError(t, h.Perform(context.Background()))
	})

	t.Run("unknown host", func(t *testing.T) {
		empty := filepath.Join(dir, "empty_known_hosts")
		require.NoError(t, os.WriteFile(empty, nil, 0o600))

		o := prepare(h, fmt.Sprintf("sftp://%s//", srv.Addr))
		o.NoBody = true
		o.SSHKnownHosts = empty
		requireCode(t, PeerFailedVerification, h.Perform(context.Background()))
	})

	t.Run("changed key", func(t *testing.T) {
		other := sftptest.NewServer(t, testUser, testPassword)
		line := knownhosts.Line([]string{knownhosts.Normalize(srv.Addr)}, other.HostKey)
		file := filepath.Join(dir, "stale_known_hosts")
		require.NoError(t, os.WriteFile(file, []byte(line+"\n"), 0o600))

		o := prepare(h, fmt.Sprintf("sftp://%s//", srv.Addr))
		o.NoBody = true
		o.SSHKnownHosts = file
		requireCode(t, PeerFailedVerification, h.Perform(context.Background()))
	})

	t.Run("missing file", func(t *testing.T) {
		o := prepare(h, fmt.Sprintf("sftp://%s//", srv.Addr))
		o.NoBody = true
		o.SSHKnownHosts = filepath.Join(dir, "does-not-exist")
		requireCode(t, PeerFailedVerification, h.Perform(context.Background()))
	})
}

func TestSFTPWildcardUnsupported(t *testing.T) {
	h, srv := newSFTPHandle(t)

	o := prepareSFTP(h, srv, "/pub//*")
	o.WildcardMatch = true
	requireCode(t, UnsupportedProtocol, h.Perform(context.Background()))
}
