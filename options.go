package ftpclient

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/embeddedmz/ftpclient/internal/transport"
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithLogger sets the logger receiving error and warning messages. Messages
// are only emitted for sessions initialized with Flags.Log.
//
// Example:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
//	client, _ := ftpclient.New(ftpclient.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		c.baseLogger = logger
		return nil
	}
}

// WithLogFunc routes error and warning messages to fn, one formatted line
// per message:
//
//	[FTPClient][Error] download failed path=docs/a.txt code=78 ...
//
// Like WithLogger, messages are only emitted for sessions initialized with
// Flags.Log.
func WithLogFunc(fn func(string)) Option {
	return func(c *Client) error {
		if fn == nil {
			return fmt.Errorf("nil log function")
		}
		c.baseLogger = slog.New(newFuncHandler(fn))
		return nil
	}
}

// WithTraceDir enables protocol traces. Sessions initialized with Flags.Log
// write the control connection dialogue and a summary line per request to
// dir/ftpclient-trace.log, rotated by size.
func WithTraceDir(dir string) Option {
	return func(c *Client) error {
		fi, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("trace directory: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("trace directory %s: %w", dir, ErrNotDirectory)
		}
		c.traceDir = dir
		return nil
	}
}

// WithMetrics sets the collector receiving request, transfer and session
// metrics.
func WithMetrics(m MetricsCollector) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithMaxWildcardDepth bounds the directory recursion of DownloadWildcard.
// The default is DefaultMaxWildcardDepth.
func WithMaxWildcardDepth(depth int) Option {
	return func(c *Client) error {
		if depth < 1 {
			return fmt.Errorf("invalid wildcard depth %d", depth)
		}
		c.maxWildcardDepth = depth
		return nil
	}
}

// withTransportOptions customizes the handles created by InitSession.
func withTransportOptions(opts ...transport.HandleOption) Option {
	return func(c *Client) error {
		c.handleOpts = append(c.handleOpts, opts...)
		return nil
	}
}
