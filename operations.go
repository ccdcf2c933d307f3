package ftpclient

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/embeddedmz/ftpclient/internal/transport"
)

// FileInfo is the metadata returned by Info.
type FileInfo struct {
	ModTime time.Time
	Size    int64
}

// CreateDir creates a remote directory. On FTP, FTPS and FTPES missing
// parent directories are created as well.
//
// Example:
//
//	// creates bookmarks under upload
//	err := client.CreateDir("upload/bookmarks")
func (c *Client) CreateDir(newDir string) error {
	newDir = strings.TrimRight(newDir, "/")
	if newDir == "" {
		return ErrEmptyArgument
	}
	o, err := c.reset()
	if err != nil {
		return err
	}
	c.directoryCommand(o, "MKD", "mkdir", newDir)
	o.CreateMissingDirs = true

	if err := c.perform("mkdir", newDir); err != nil {
		c.logFailure("unable to create directory", newDir, err)
		return err
	}
	return nil
}

// RemoveDir removes an empty remote directory.
func (c *Client) RemoveDir(dir string) error {
	dir = strings.TrimRight(dir, "/")
	if dir == "" {
		return ErrEmptyArgument
	}
	o, err := c.reset()
	if err != nil {
		return err
	}
	c.directoryCommand(o, "RMD", "rmdir", dir)

	if err := c.perform("rmdir", dir); err != nil {
		c.logFailure("unable to remove directory", dir, err)
		return err
	}
	return nil
}

// RemoveFile removes a remote file.
func (c *Client) RemoveFile(remoteFile string) error {
	if remoteFile == "" {
		return ErrEmptyArgument
	}
	o, err := c.reset()
	if err != nil {
		return err
	}
	c.directoryCommand(o, "DELE", "rm", remoteFile)

	if err := c.perform("rm", remoteFile); err != nil {
		c.logFailure("unable to remove file", remoteFile, err)
		return err
	}
	return nil
}

// directoryCommand targets a server-side command at remote. FTP commands
// run in the parent directory on the bare name; SFTP commands take the full
// path from the root.
func (c *Client) directoryCommand(o *transport.Options, ftpVerb, sftpVerb, remote string) {
	o.NoBody = true
	if c.protocol == SFTP {
		o.URL = c.buildURL("")
		o.PostQuote = []string{sftpVerb + " " + quoteArg(remote)}
		return
	}

	dir, name := "", remote
	if i := strings.LastIndex(remote, "/"); i >= 0 {
		dir, name = remote[:i], remote[i+1:]
	}
	if dir == "" {
		o.URL = c.buildURL("")
	} else {
		o.URL = c.buildURL(dir) + "//"
	}
	o.PostQuote = []string{ftpVerb + " " + name}
}

// quoteArg quotes an SFTP command argument containing spaces or quotes.
func quoteArg(s string) string {
	if !strings.ContainsAny(s, " \"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// Info returns the modification time and size of a remote file. It fails
// with ErrInfoUnavailable when the server does not report both.
func (c *Client) Info(remoteFile string) (FileInfo, error) {
	if remoteFile == "" {
		return FileInfo{}, ErrEmptyArgument
	}
	o, err := c.reset()
	if err != nil {
		return FileInfo{}, err
	}
	o.URL = c.buildURL(remoteFile)
	o.NoBody = true
	o.FileTime = true

	if err := c.perform("info", remoteFile); err != nil {
		c.logFailure("unable to get file info", remoteFile, err)
		return FileInfo{}, err
	}

	info := c.handle.Info()
	if info.FileTime < 0 || info.ContentLength < 0 {
		err := fmt.Errorf("%s: %w", remoteFile, ErrInfoUnavailable)
		c.logFailure("unable to get file info", remoteFile, err)
		return FileInfo{}, err
	}
	return FileInfo{ModTime: time.Unix(info.FileTime, 0), Size: info.ContentLength}, nil
}

// List lists a remote folder. Entries are separated by "\n"; with onlyNames
// each entry is a bare name, otherwise an "ls -l" style line.
//
// Example:
//
//	// detailed listing of the server root
//	list, err := client.List("/", false)
func (c *Client) List(remoteFolder string, onlyNames bool) (string, error) {
	if remoteFolder == "" {
		return "", ErrEmptyArgument
	}
	o, err := c.reset()
	if err != nil {
		return "", err
	}
	folder := remoteFolder
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	var out strings.Builder
	o.URL = c.buildURL(folder)
	o.DirListOnly = onlyNames
	o.Write = &out

	if err := c.perform("list", remoteFolder); err != nil {
		c.logFailure("unable to list folder", remoteFolder, err)
		return "", err
	}
	return out.String(), nil
}

// DownloadFile downloads a remote file to localFile, overwriting it. On
// failure localFile is removed.
func (c *Client) DownloadFile(localFile, remoteFile string) error {
	if localFile == "" || remoteFile == "" {
		return ErrEmptyArgument
	}
	o, err := c.reset()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(localFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		err = fmt.Errorf("ftpclient: creating local file: %w", err)
		c.logFailure("unable to open local file", remoteFile, err)
		return err
	}
	o.URL = c.buildURL(remoteFile)
	o.Write = f

	perr := c.perform("download", remoteFile)
	if cerr := f.Close(); perr == nil && cerr != nil {
		perr = fmt.Errorf("ftpclient: closing local file: %w", cerr)
	}
	if perr != nil {
		_ = os.Remove(localFile)
		c.logFailure("unable to download file", remoteFile, perr)
		return perr
	}
	return nil
}

// DownloadBytes downloads a remote file into memory.
func (c *Client) DownloadBytes(remoteFile string) ([]byte, error) {
	if remoteFile == "" {
		return nil, ErrEmptyArgument
	}
	o, err := c.reset()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	o.URL = c.buildURL(remoteFile)
	o.Write = &buf

	if err := c.perform("download", remoteFile); err != nil {
		c.logFailure("unable to download file", remoteFile, err)
		return nil, err
	}
	return buf.Bytes(), nil
}

// UploadFile uploads localFile to remoteFile, overwriting it. With
// createDirs, missing remote directories are created.
//
// Example:
//
//	// upload and pictures are created if needed
//	err := client.UploadFile("/tmp/imagination.jpg", "upload/pictures/imagination.jpg", true)
func (c *Client) UploadFile(localFile, remoteFile string, createDirs bool) error {
	if localFile == "" || remoteFile == "" {
		return ErrEmptyArgument
	}
	return c.uploadLocal("upload", localFile, 0, remoteFile, createDirs, false)
}

// AppendFile appends the content of localFile, starting at offset, to
// remoteFile. The offset must lie inside the local file.
func (c *Client) AppendFile(localFile string, offset int64, remoteFile string, createDirs bool) error {
	if localFile == "" || remoteFile == "" {
		return ErrEmptyArgument
	}
	return c.uploadLocal("append", localFile, offset, remoteFile, createDirs, true)
}

func (c *Client) uploadLocal(op, localFile string, offset int64, remoteFile string, createDirs, appendMode bool) error {
	o, err := c.reset()
	if err != nil {
		return err
	}

	f, err := os.Open(localFile)
	if err != nil {
		err = fmt.Errorf("ftpclient: opening local file: %w", err)
		c.logFailure("unable to upload file", localFile, err)
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		err = fmt.Errorf("ftpclient: opening local file: %w", err)
		c.logFailure("unable to upload file", localFile, err)
		return err
	}
	size := fi.Size()
	if appendMode {
		if offset < 0 || offset >= size {
			err := fmt.Errorf("%s: offset %d, size %d: %w", localFile, offset, size, ErrInvalidOffset)
			c.logFailure("incorrect offset", localFile, err)
			return err
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			err = fmt.Errorf("ftpclient: seeking local file: %w", err)
			c.logFailure("unable to upload file", localFile, err)
			return err
		}
		size -= offset
	}

	c.uploadOptions(o, f, size, remoteFile, createDirs, appendMode)
	if err := c.perform(op, remoteFile); err != nil {
		c.logFailure("unable to upload file", localFile, err)
		return err
	}
	return nil
}

// UploadReader uploads the content of r to remoteFile. When r is an
// io.Seeker the remaining size is announced to the progress callback.
func (c *Client) UploadReader(r io.Reader, remoteFile string, createDirs bool) error {
	if r == nil || remoteFile == "" {
		return ErrEmptyArgument
	}
	o, err := c.reset()
	if err != nil {
		return err
	}

	size := int64(-1)
	if s, ok := r.(io.Seeker); ok {
		if cur, err := s.Seek(0, io.SeekCurrent); err == nil {
			if end, err := s.Seek(0, io.SeekEnd); err == nil {
				size = end - cur
			}
			if _, err := s.Seek(cur, io.SeekStart); err != nil {
				return fmt.Errorf("ftpclient: rewinding upload source: %w", err)
			}
		}
	}

	c.uploadOptions(o, r, size, remoteFile, createDirs, false)
	if err := c.perform("upload", remoteFile); err != nil {
		c.logFailure("unable to upload stream", remoteFile, err)
		return err
	}
	return nil
}

func (c *Client) uploadOptions(o *transport.Options, r io.Reader, size int64, remoteFile string, createDirs, appendMode bool) {
	o.URL = c.buildURL(remoteFile)
	o.Upload = true
	o.Append = appendMode
	o.Read = r
	o.InFileSize = size
	o.CreateMissingDirs = createDirs
}
