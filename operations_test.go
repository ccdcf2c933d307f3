package ftpclient

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedmz/ftpclient/internal/memftp"
)

func TestCreateRemoveDir(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	c := newFTPClient(t, srv)

	require.NoError(t, c.CreateDir("upload"))
	assert.True(t, srv.IsDir("/upload"))

	// Missing parents are created.
	require.NoError(t, c.CreateDir("upload/bookmarks/2024/"))
	assert.True(t, srv.IsDir("/upload/bookmarks/2024"))

	require.NoError(t, c.RemoveDir("upload/bookmarks/2024"))
	assert.False(t, srv.Exists("/upload/bookmarks/2024"))
	assert.True(t, srv.IsDir("/upload/bookmarks"))

	err := c.RemoveDir("upload/bookmarks/2024")
	require.Error(t, err)
	assert.Equal(t, "rmdir", err.(*TransferError).Op)

	// A directory whose parent is missing cannot be removed either.
	assert.Error(t, c.RemoveDir("nowhere/dir"))
}

func TestRemoveFile(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/docs/a.txt", []byte("a"))
	srv.WriteFile("/b.txt", []byte("b"))
	c := newFTPClient(t, srv)

	require.NoError(t, c.RemoveFile("docs/a.txt"))
	assert.False(t, srv.Exists("/docs/a.txt"))
	require.NoError(t, c.RemoveFile("b.txt"))
	assert.False(t, srv.Exists("/b.txt"))

	assert.Error(t, c.RemoveFile("docs/a.txt"))
}

func TestInfo(t *testing.T) {
	t.Parallel()
	mod := time.Date(2024, 3, 9, 17, 45, 0, 0, time.UTC)
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/docs/report.pdf", bytes.Repeat([]byte("x"), 1234))
	srv.SetModTime("/docs/report.pdf", mod)
	c := newFTPClient(t, srv)

	info, err := c.Info("docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), info.Size)
	assert.True(t, mod.Equal(info.ModTime), "got %v", info.ModTime)

	_, err = c.Info("docs/missing.pdf")
	assert.True(t, IsNotFound(err), "error: %v", err)

	srv.DisableMDTM = true
	_, err = c.Info("docs/report.pdf")
	assert.ErrorIs(t, err, ErrInfoUnavailable)
}

func TestList(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/pictures/a.jpg", []byte("aaa"))
	srv.WriteFile("/pictures/b.jpg", []byte("bb"))
	srv.MkdirAll("/pictures/2023")
	c := newFTPClient(t, srv)

	names, err := c.List("pictures", true)
	require.NoError(t, err)
	assert.Equal(t, "2023\na.jpg\nb.jpg\n", names)

	long, err := c.List("pictures/", false)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(long, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "d"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " a.jpg"), lines[1])
	assert.Contains(t, lines[1], " 3 ")

	_, err = c.List("missing", true)
	assert.Error(t, err)
}

func TestDownloadFile(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/documents/info.txt", []byte("some information"))
	c := newFTPClient(t, srv)
	dir := t.TempDir()

	local := filepath.Join(dir, "info.txt")
	require.NoError(t, os.WriteFile(local, []byte("previous and longer content"), 0o644))
	require.NoError(t, c.DownloadFile(local, "documents/info.txt"))
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "some information", string(data))

	missing := filepath.Join(dir, "missing.txt")
	err = c.DownloadFile(missing, "documents/missing.txt")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoFileExists(t, missing)

	err = c.DownloadFile(filepath.Join(dir, "nodir", "x.txt"), "documents/info.txt")
	assert.Error(t, err)
}

func TestDownloadBytes(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/my folder/my file.txt", []byte("spaced"))
	c := newFTPClient(t, srv)

	data, err := c.DownloadBytes("my folder/my file.txt")
	require.NoError(t, err)
	assert.Equal(t, "spaced", string(data))
}

func TestUploadFile(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	c := newFTPClient(t, srv)
	local := filepath.Join(t.TempDir(), "imagination.jpg")
	require.NoError(t, os.WriteFile(local, []byte("jpeg bytes"), 0o644))

	err := c.UploadFile(local, "upload/pictures/imagination.jpg", false)
	require.Error(t, err)
	assert.False(t, srv.Exists("/upload"))

	require.NoError(t, c.UploadFile(local, "upload/pictures/imagination.jpg", true))
	data, ok := srv.ReadFile("/upload/pictures/imagination.jpg")
	require.True(t, ok)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestUploadMissingLocalFile(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	c := newFTPClient(t, srv)

	err := c.UploadFile(filepath.Join(t.TempDir(), "missing"), "a.txt", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Zero(t, srv.Dials())
}

func TestAppendFile(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/log.txt", []byte("hello "))
	c := newFTPClient(t, srv)
	local := filepath.Join(t.TempDir(), "tail.txt")
	require.NoError(t, os.WriteFile(local, []byte("XXworld"), 0o644))

	require.NoError(t, c.AppendFile(local, 2, "log.txt", false))
	data, _ := srv.ReadFile("/log.txt")
	assert.Equal(t, "hello world", string(data))

	for _, off := range []int64{-1, 7, 100} {
		assert.ErrorIs(t, c.AppendFile(local, off, "log.txt", false), ErrInvalidOffset, "offset %d", off)
	}
	data, _ = srv.ReadFile("/log.txt")
	assert.Equal(t, "hello world", string(data))

	// Appending to a missing file creates it.
	require.NoError(t, c.AppendFile(local, 0, "new/log.txt", true))
	data, _ = srv.ReadFile("/new/log.txt")
	assert.Equal(t, "XXworld", string(data))
}

func TestUploadReader(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	c := newFTPClient(t, srv)

	var ulTotal int64
	c.SetProgressFunc(nil, func(_ *ProgressContext, _, _, total, _ int64) error {
		ulTotal = total
		return nil
	})

	r := strings.NewReader("0123456789")
	_, err := r.Seek(4, 0)
	require.NoError(t, err)
	require.NoError(t, c.UploadReader(r, "stream.bin", false))
	data, _ := srv.ReadFile("/stream.bin")
	assert.Equal(t, "456789", string(data))
	assert.Equal(t, int64(6), ulTotal)

	require.NoError(t, c.UploadReader(bytes.NewBufferString("plain"), "plain.bin", false))
	data, _ = srv.ReadFile("/plain.bin")
	assert.Equal(t, "plain", string(data))
}

func TestProgressFunc(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	payload := bytes.Repeat([]byte("p"), 64*1024)
	srv.WriteFile("/big.bin", payload)
	c := newFTPClient(t, srv)

	owner := &struct{ name string }{"owner"}
	var calls int
	var last int64
	c.SetProgressFunc(owner, func(p *ProgressContext, dlTotal, dlNow, _, _ int64) error {
		calls++
		assert.Same(t, owner, p.Owner)
		assert.Same(t, c, p.Client)
		last = dlNow
		return nil
	})

	_, err := c.DownloadBytes("big.bin")
	require.NoError(t, err)
	assert.Positive(t, calls)
	assert.Equal(t, int64(len(payload)), last)

	c.SetProgressFunc(owner, func(*ProgressContext, int64, int64, int64, int64) error {
		return errors.New("stop")
	})
	_, err = c.DownloadBytes("big.bin")
	assert.Equal(t, CodeAbortedByCallback, CodeOf(err))

	c.SetProgressFunc(nil, nil)
	_, err = c.DownloadBytes("big.bin")
	assert.NoError(t, err)
}

func TestTraceFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/a.txt", []byte("a"))
	c := newFTPClient(t, srv, WithTraceDir(dir))

	_, err := c.DownloadBytes("a.txt")
	require.NoError(t, err)
	_, _ = c.DownloadBytes("b.txt")
	require.NoError(t, c.CleanupSession())

	data, err := os.ReadFile(filepath.Join(dir, "ftpclient-trace.log"))
	require.NoError(t, err)
	trace := string(data)
	assert.Contains(t, trace, "* GET ftp://memftp//a.txt: 0 ")
	assert.Contains(t, trace, "* GET ftp://memftp//b.txt: 78 ")
	assert.NotContains(t, trace, testPassword)
}
