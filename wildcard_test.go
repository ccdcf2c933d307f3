package ftpclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedmz/ftpclient/internal/memftp"
)

func readLocal(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestDownloadWildcardRecursive(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.ListDots = true
	srv.WriteFile("/pictures/a.jpg", []byte("a"))
	srv.WriteFile("/pictures/b.png", []byte("b"))
	srv.WriteFile("/pictures/2023/c.jpg", []byte("c"))
	srv.WriteFile("/pictures/2023/summer/d.jpg", []byte("d"))
	srv.MkdirAll("/pictures/empty")
	c := newFTPClient(t, srv)
	dir := t.TempDir()

	require.NoError(t, c.DownloadWildcard(dir, "pictures/*"))

	assert.Equal(t, "a", readLocal(t, filepath.Join(dir, "a.jpg")))
	assert.Equal(t, "b", readLocal(t, filepath.Join(dir, "b.png")))
	assert.Equal(t, "c", readLocal(t, filepath.Join(dir, "2023", "c.jpg")))
	assert.Equal(t, "d", readLocal(t, filepath.Join(dir, "2023", "summer", "d.jpg")))
	assert.DirExists(t, filepath.Join(dir, "empty"))

	// Existing local directories and files are reused.
	require.NoError(t, c.DownloadWildcard(dir, "pictures/*"))
}

func TestDownloadWildcardPattern(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/pictures/a.jpg", []byte("a"))
	srv.WriteFile("/pictures/b.png", []byte("b"))
	srv.WriteFile("/pictures/jpgs/c.jpg", []byte("c"))
	c := newFTPClient(t, srv)
	dir := t.TempDir()

	require.NoError(t, c.DownloadWildcard(dir, "pictures/*.jpg"))
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "b.png"))
	assert.NoDirExists(t, filepath.Join(dir, "jpgs"))
}

func TestDownloadWildcardNoMatch(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/pictures/a.jpg", []byte("a"))
	c := newFTPClient(t, srv)
	dir := t.TempDir()

	require.NoError(t, c.DownloadWildcard(dir, "pictures/*.gif"))

	err := c.DownloadWildcard(dir, "missing/*")
	require.Error(t, err)
	assert.Equal(t, CodeRemoteAccessDenied, CodeOf(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadWildcardDeniedFile(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/d/a.txt", []byte("a"))
	srv.WriteFile("/d/b.txt", []byte("b"))
	srv.WriteFile("/d/c.txt", []byte("c"))
	srv.WriteFile("/d/sub/e.txt", []byte("e"))
	srv.DenyRead("/d/b.txt")
	c := newFTPClient(t, srv)
	dir := t.TempDir()

	err := c.DownloadWildcard(dir, "d/*")
	require.Error(t, err)
	assert.Equal(t, CodeRemoteFileNotFound, CodeOf(err))

	assert.Equal(t, "a", readLocal(t, filepath.Join(dir, "a.txt")))
	assert.NoFileExists(t, filepath.Join(dir, "b.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "c.txt"))
}

func TestDownloadWildcardDestination(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/a.txt", []byte("a"))
	c := newFTPClient(t, srv)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.ErrorIs(t, c.DownloadWildcard(file, "*"), ErrNotDirectory)
	assert.ErrorIs(t, c.DownloadWildcard(filepath.Join(t.TempDir(), "missing"), "*"), ErrNotDirectory)
	assert.Zero(t, srv.Dials())
}

func TestDownloadWildcardDepth(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	srv.WriteFile("/a/b/c/d/deep.txt", []byte("deep"))
	srv.WriteFile("/a/top.txt", []byte("top"))
	c := newFTPClient(t, srv, WithMaxWildcardDepth(2))
	dir := t.TempDir()

	err := c.DownloadWildcard(dir, "a/*")
	require.ErrorIs(t, err, ErrWildcardDepth)
	assert.FileExists(t, filepath.Join(dir, "top.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "b", "c", "d", "deep.txt"))
}

func TestDownloadWildcardBadPattern(t *testing.T) {
	t.Parallel()
	srv := memftp.NewServer(testUser, testPassword)
	c := newFTPClient(t, srv)

	err := c.DownloadWildcard(t.TempDir(), "docs/[")
	assert.Equal(t, CodeURLMalformat, CodeOf(err))
}

func TestDownloadWildcardSFTP(t *testing.T) {
	t.Parallel()
	c, _ := newSFTPClient(t)
	assert.ErrorIs(t, c.DownloadWildcard(t.TempDir(), "*"), ErrUnsupported)
}
