package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

type sftpBackend struct {
	client *sftp.Client
	ssh    *ssh.Client

	mu    sync.Mutex
	raw   net.Conn
	agent net.Conn
}

func dialSFTP(ctx context.Context, t *target, o *Options) (*sftpBackend, error) {
	hostKey, err := hostKeyCallback(o)
	if err != nil {
		return nil, err
	}

	b := &sftpBackend{}
	cfg := &ssh.ClientConfig{
		User:            t.user,
		Auth:            b.authMethods(o, t.pass),
		HostKeyCallback: hostKey,
		Timeout:         o.Timeout,
	}

	d, err := newDialer(o)
	if err != nil {
		b.closeAgent()
		return nil, err
	}
	raw, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		b.closeAgent()
		return nil, err
	}
	b.raw = raw

	// The handshake honours the request deadline.
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	conn, chans, reqs, err := ssh.NewClientConn(raw, t.addr, cfg)
	stop()
	if err != nil {
		b.abort()
		return nil, classifySSH(err)
	}
	b.ssh = ssh.NewClient(conn, chans, reqs)

	client, err := sftp.NewClient(b.ssh)
	if err != nil {
		_ = b.ssh.Close()
		b.abort()
		return nil, newError(SSHError, fmt.Errorf("starting sftp subsystem: %w", err))
	}
	b.client = client
	return b, nil
}

func hostKeyCallback(o *Options) (ssh.HostKeyCallback, error) {
	if !o.SSLVerifyHost || !o.SSLVerifyPeer {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := o.SSHKnownHosts
	if file == "" {
		file = Global().KnownHosts
	}
	if file == "" {
		return nil, newError(PeerFailedVerification, errors.New("no known_hosts file"))
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, newError(PeerFailedVerification, fmt.Errorf("loading known_hosts: %w", err))
	}
	return cb, nil
}

// authMethods lists the agent keys first when requested, then the password
// both as plain password and keyboard-interactive answer.
func (b *sftpBackend) authMethods(o *Options, password string) []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if o.SSHAuthTypes == SSHAuthAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				b.agent = conn
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}
	methods = append(methods,
		ssh.Password(password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	)
	return methods
}

func classifySSH(err error) *Error {
	if ce := classify(err, SSHError); ce.Code != SSHError {
		return ce
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return newError(LoginDenied, err)
	}
	return newError(SSHError, err)
}

func (b *sftpBackend) closeAgent() {
	if b.agent != nil {
		_ = b.agent.Close()
		b.agent = nil
	}
}

func (b *sftpBackend) bind(context.Context) {}

func (b *sftpBackend) alive() bool {
	_, err := b.client.Getwd()
	return err == nil
}

func (b *sftpBackend) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.raw != nil {
		_ = b.raw.Close()
	}
	b.closeAgent()
}

func (b *sftpBackend) close() error {
	var errs []error
	if b.client != nil {
		errs = append(errs, b.client.Close())
	}
	if b.ssh != nil {
		if err := b.ssh.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	b.abort()
	return errors.Join(errs...)
}

func (b *sftpBackend) checkDir(dir string) error {
	fi, err := b.client.Stat(dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s: not a directory", dir)
	}
	return nil
}

func (b *sftpBackend) mkdirAll(dir string) error {
	return b.client.MkdirAll(dir)
}

func (b *sftpBackend) list(dir string) ([]FileInfo, error) {
	entries, err := b.client.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, fi := range entries {
		info := FileInfo{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime()}
		switch mode := fi.Mode(); {
		case mode.IsDir():
			info.Type = FileTypeDirectory
		case mode&os.ModeSymlink != 0:
			info.Type = FileTypeSymlink
		case mode.IsRegular():
			info.Type = FileTypeFile
		default:
			info.Type = FileTypeOther
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (b *sftpBackend) nameList(dir string) ([]string, error) {
	entries, err := b.client.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, fi := range entries {
		names = append(names, fi.Name())
	}
	return names, nil
}

func (b *sftpBackend) size(p string) (int64, error) {
	fi, err := b.client.Stat(p)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (b *sftpBackend) modTime(p string) (time.Time, error) {
	fi, err := b.client.Stat(p)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

func (b *sftpBackend) retrieve(p string, w io.Writer) error {
	f, err := b.client.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (b *sftpBackend) store(p string, r io.Reader, appendMode bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := b.client.OpenFile(p, flags)
	if err != nil {
		return err
	}
	if appendMode {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			_ = f.Close()
			return err
		}
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// quote runs one SFTP command. Relative paths are resolved against dir.
func (b *sftpBackend) quote(dir, cmd string) error {
	args, err := splitQuoted(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("empty quote command")
	}
	need := func(n int) error {
		if len(args) != n+1 {
			return fmt.Errorf("%s: expected %d argument(s), got %d", args[0], n, len(args)-1)
		}
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "mkdir":
		if err := need(1); err != nil {
			return err
		}
		return b.client.Mkdir(resolve(dir, args[1]))
	case "rmdir":
		if err := need(1); err != nil {
			return err
		}
		return b.client.RemoveDirectory(resolve(dir, args[1]))
	case "rm":
		if err := need(1); err != nil {
			return err
		}
		return b.client.Remove(resolve(dir, args[1]))
	case "rename":
		if err := need(2); err != nil {
			return err
		}
		return b.client.Rename(resolve(dir, args[1]), resolve(dir, args[2]))
	case "ln", "symlink":
		if err := need(2); err != nil {
			return err
		}
		return b.client.Symlink(resolve(dir, args[1]), resolve(dir, args[2]))
	case "chmod":
		if err := need(2); err != nil {
			return err
		}
		mode, err := strconv.ParseUint(args[1], 8, 32)
		if err != nil {
			return fmt.Errorf("chmod: invalid mode %q", args[1])
		}
		return b.client.Chmod(resolve(dir, args[2]), os.FileMode(mode))
	default:
		return fmt.Errorf("unsupported quote command %q", args[0])
	}
}

func (b *sftpBackend) wildcard() bool {
	return false
}

// splitQuoted splits a command line on spaces. Double-quoted arguments may
// contain spaces and \" escapes.
func splitQuoted(s string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote, escaped, started := false, false, false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && inQuote:
			escaped = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case r == ' ' && !inQuote:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in %q", s)
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}
