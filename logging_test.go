package ftpclient

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedmz/ftpclient/internal/memftp"
)

func TestFuncHandler(t *testing.T) {
	t.Parallel()
	rec := &logRecorder{}
	logger := slog.New(newFuncHandler(rec.log))

	logger.Info("ignored")
	logger.Warn("slow server", "elapsed", 3)
	logger.With("session_id", "abc").WithGroup("req").Error("failed", "path", "a.txt")

	assert.Equal(t, []string{
		"[FTPClient][Warning] slow server elapsed=3",
		"[FTPClient][Error] failed session_id=abc req.path=a.txt",
	}, rec.messages())
}

func TestLogFuncOnlyWithLogFlag(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)

	quiet := &logRecorder{}
	c, err := New(memDialer(srv), WithLogFunc(quiet.log))
	require.NoError(t, err)
	require.NoError(t, c.InitSession("ftp://memftp", 21, testUser, testPassword, FTP, NoFlags))
	_, err = c.DownloadBytes("missing.txt")
	require.Error(t, err)
	require.NoError(t, c.CleanupSession())
	assert.Empty(t, quiet.messages())

	loud := &logRecorder{}
	c = newFTPClient(t, srv, WithLogFunc(loud.log))
	_, err = c.DownloadBytes("missing.txt")
	require.Error(t, err)

	msgs := loud.messages()
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0], "[FTPClient][Error] unable to download file"), msgs[0])
	assert.Contains(t, msgs[0], "path=missing.txt")
	assert.Contains(t, msgs[0], "code=78")
	assert.Contains(t, msgs[0], "session_id="+c.SessionID())
	assert.Contains(t, msgs[0], "protocol=FTP")
}

func TestCloseWithoutCleanup(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	rec := &logRecorder{}
	c := newFTPClient(t, srv, WithLogFunc(rec.log))

	_, err := c.List("/", true)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.False(t, c.Active())
	assert.True(t, rec.contains("[FTPClient][Warning] object was closed before calling CleanupSession"))
	assert.Equal(t, 1, srv.Quits())

	// Nothing to report once the session is gone.
	before := len(rec.messages())
	require.NoError(t, c.Close())
	assert.Len(t, rec.messages(), before)
}

func TestWithLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c, err := New(WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, c.InitSession("ftp.example.com", 21, "u", "p", FTP, AllFlags))
	assert.ErrorIs(t, c.InitSession("ftp.example.com", 21, "u", "p", FTP, AllFlags), ErrSessionActive)
	require.NoError(t, c.CleanupSession())

	assert.Contains(t, buf.String(), "session already initialized")
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestActiveModeWarnsOnce(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/a.txt", []byte("a"))
	rec := &logRecorder{}
	c := newFTPClient(t, srv, WithLogFunc(rec.log))
	c.SetActive(true)

	for j := 0; j < 3; j++ {
		_, err := c.DownloadBytes("a.txt")
		require.NoError(t, err)
	}

	var warnings int
	for _, msg := range rec.messages() {
		if strings.Contains(msg, "active mode is not supported") {
			assert.True(t, strings.HasPrefix(msg, "[FTPClient][Warning]"), msg)
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}
