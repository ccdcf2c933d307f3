package ftpclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/embeddedmz/ftpclient/internal/memftp"
	"github.com/embeddedmz/ftpclient/internal/sftptest"
	"github.com/embeddedmz/ftpclient/internal/transport"
)

const (
	testUser     = "user"
	testPassword = "secret"
)

// memDialer routes the FTP connections of a client to srv.
func memDialer(srv *memftp.Server) Option {
	return withTransportOptions(transport.WithFTPDialer(func(ctx context.Context, addr string) (transport.ServerConn, error) {
		c, err := srv.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	}))
}

// newFTPClient returns a client with an FTP session on srv.
func newFTPClient(t *testing.T, srv *memftp.Server, opts ...Option) *Client {
	t.Helper()
	c, err := New(append([]Option{memDialer(srv)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, c.InitSession("ftp://memftp", 21, testUser, testPassword, FTP, AllFlags))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// newSFTPClient returns a client with an SFTP session on an in-process
// server. Host keys are not verified.
func newSFTPClient(t *testing.T) (*Client, *sftptest.Server) {
	t.Helper()
	srv := sftptest.NewServer(t, testUser, testPassword)
	c, err := New()
	require.NoError(t, err)
	require.NoError(t, c.InitSession(srv.Host, srv.Port, testUser, testPassword, SFTP, NoFlags))
	c.SetInsecure(true)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

// logRecorder collects the messages of WithLogFunc.
type logRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *logRecorder) log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *logRecorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func (r *logRecorder) contains(sub string) bool {
	for _, m := range r.messages() {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

// mockMetrics records MetricsCollector calls.
type mockMetrics struct {
	mu        sync.Mutex
	requests  []string
	transfers map[string]int64
	sessions  []string
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{transfers: make(map[string]int64)}
}

func (m *mockMetrics) RecordRequest(op string, code int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, fmt.Sprintf("%s:%d", op, code))
}

func (m *mockMetrics) RecordTransfer(op string, bytes int64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[op] += bytes
}

func (m *mockMetrics) RecordSession(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, event)
}
