package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/embeddedmz/ftpclient"
	"github.com/embeddedmz/ftpclient/internal/config"
)

// profile returns the server settings: the configuration profile with the
// flags set on the command line applied on top.
func profile(cmd *cobra.Command) (*config.Server, *config.Local, error) {
	srv := &config.Server{Protocol: "ftp"}
	local := &config.Local{}

	cfg, err := config.Load(flags.configFile)
	switch {
	case err == nil:
		p, perr := cfg.Profile(flags.profile)
		if perr != nil {
			return nil, nil, perr
		}
		srv, local = p, &cfg.Local
	case errors.Is(err, config.ErrConfigNotFound) && flags.configFile == "":
	default:
		return nil, nil, err
	}

	changed := cmd.Flags().Changed
	if changed("protocol") {
		srv.Protocol = flags.protocol
	}
	if changed("host") {
		srv.Host = flags.host
	}
	if changed("port") {
		srv.Port = flags.port
	}
	if changed("user") {
		srv.Username = flags.user
	}
	if changed("password") {
		srv.Password = flags.password
	}
	if changed("insecure") {
		srv.Insecure = flags.insecure
	}
	if changed("known-hosts") {
		local.KnownHosts = config.ExpandPath(flags.knownHosts)
	}
	if changed("trace-dir") {
		local.TraceDir = config.ExpandPath(flags.traceDir)
	}
	if srv.Port == 0 {
		srv.Port = defaultPort(srv.Protocol)
	}

	if err := srv.Validate(); err != nil {
		return nil, nil, err
	}
	return srv, local, nil
}

func defaultPort(protocol string) int {
	switch strings.ToLower(protocol) {
	case "sftp":
		return 22
	case "ftps":
		return 990
	default:
		return 21
	}
}

// logger returns the logger receiving the client messages and a function
// releasing it.
func logger(stderr io.Writer) (*slog.Logger, func()) {
	if flags.logFile != "" {
		lj := &lumberjack.Logger{
			Filename:   config.ExpandPath(flags.logFile),
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		return slog.New(slog.NewJSONHandler(lj, nil)), func() { _ = lj.Close() }
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})), func() {}
}

// openSession creates a client with an initialized session. The returned
// function ends the session.
func openSession(cmd *cobra.Command) (*ftpclient.Client, func(), error) {
	srv, local, err := profile(cmd)
	if err != nil {
		return nil, nil, err
	}
	protocol, _ := srv.ProtocolValue()

	log, closeLog := logger(cmd.ErrOrStderr())
	opts := []ftpclient.Option{ftpclient.WithLogger(log)}
	if local.TraceDir != "" {
		if err := os.MkdirAll(local.TraceDir, 0o755); err != nil {
			closeLog()
			return nil, nil, fmt.Errorf("creating trace directory: %w", err)
		}
		opts = append(opts, ftpclient.WithTraceDir(local.TraceDir))
	}
	client, err := ftpclient.New(opts...)
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	sessionFlags := ftpclient.Flags{
		Log:      flags.verbose || flags.logFile != "" || local.TraceDir != "",
		SSHAgent: flags.sshAgent,
	}
	if err := client.InitSession(srv.Host, srv.Port, srv.Username, srv.Password, protocol, sessionFlags); err != nil {
		closeLog()
		return nil, nil, err
	}

	client.SetInsecure(srv.Insecure)
	client.SetActive(flags.active)
	client.SetTimeout(flags.timeout)
	client.SetBandwidthLimit(flags.limitDown, flags.limitUp)
	if local.KnownHosts != "" {
		client.SetKnownHostsFile(local.KnownHosts)
	}
	if local.SSLCertFile != "" {
		client.SetSSLCertFile(local.SSLCertFile)
		client.SetSSLKeyFile(local.SSLKeyFile)
		client.SetSSLKeyPassword(local.SSLKeyPwd)
	}
	if flags.proxy != "" {
		client.SetProxy(flags.proxy)
		client.SetProxyUserPwd(flags.proxyUser)
	}
	if flags.progress {
		client.SetProgressFunc(cmd.ErrOrStderr(), printProgress)
	}

	return client, func() {
		_ = client.CleanupSession()
		closeLog()
	}, nil
}

// printProgress draws a one-line progress report on the writer given as
// owner.
func printProgress(p *ftpclient.ProgressContext, dlTotal, dlNow, ulTotal, ulNow int64) error {
	w, ok := p.Owner.(io.Writer)
	if !ok {
		return nil
	}
	total, now := dlTotal, dlNow
	if ulTotal > 0 || ulNow > 0 {
		total, now = ulTotal, ulNow
	}
	if total <= 0 {
		fmt.Fprintf(w, "\r%d bytes", now)
		return nil
	}
	fmt.Fprintf(w, "\r%3d%% %d/%d bytes", now*100/total, now, total)
	return nil
}

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
)

// done prints a success line.
func done(cmd *cobra.Command, format string, args ...any) {
	if flags.progress {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okMark("✓"), fmt.Sprintf(format, args...))
}

// failed decorates a command error with its transfer outcome.
func failed(err error) error {
	var te *ftpclient.TransferError
	if errors.As(err, &te) {
		return fmt.Errorf("%s %s (code %d)", failMark("✗"), te.Error(), int(te.Code))
	}
	return fmt.Errorf("%s %w", failMark("✗"), err)
}
