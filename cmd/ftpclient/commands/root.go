// Package commands implements the ftpclient command line.
package commands

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// flags holds the persistent flags shared by every command.
var flags struct {
	configFile string
	profile    string

	protocol   string
	host       string
	port       int
	user       string
	password   string
	insecure   bool
	knownHosts string
	sshAgent   bool

	proxy     string
	proxyUser string
	timeout   time.Duration
	active    bool
	limitDown int64
	limitUp   int64

	logFile  string
	traceDir string
	verbose  bool
	noColor  bool
	progress bool
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ftpclient",
		Short: "FTP, FTPS, FTPES and SFTP client",
		Long: `ftpclient transfers files with FTP, FTPS, FTPES and SFTP servers.

Server settings come from a profile of the configuration file (ftpclient.yaml
in the current directory, ./configs, the user config directory or
~/.ftpclient) and can be overridden with flags or FTPCLIENT_* variables.

Use "ftpclient [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				color.NoColor = true
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Configuration file")
	pf.StringVarP(&flags.profile, "profile", "P", "ftp", "Configuration profile (ftp|sftp)")
	pf.StringVar(&flags.protocol, "protocol", "", "Protocol (ftp|ftps|ftpes|sftp)")
	pf.StringVarP(&flags.host, "host", "H", "", "Server host")
	pf.IntVarP(&flags.port, "port", "p", 0, "Server port")
	pf.StringVarP(&flags.user, "user", "u", "", "User name")
	pf.StringVar(&flags.password, "password", "", "Password")
	pf.BoolVarP(&flags.insecure, "insecure", "k", false, "Skip certificate and host key verification")
	pf.StringVar(&flags.knownHosts, "known-hosts", "", "known_hosts file for SFTP host keys")
	pf.BoolVar(&flags.sshAgent, "ssh-agent", false, "Authenticate SFTP sessions with the SSH agent")
	pf.StringVar(&flags.proxy, "proxy", "", "Proxy (host:port, socks5://host:port)")
	pf.StringVar(&flags.proxyUser, "proxy-user", "", "Proxy credentials (user:password)")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Request timeout (0 disables it)")
	pf.BoolVar(&flags.active, "active", false, "Use active mode for FTP data connections")
	pf.Int64Var(&flags.limitDown, "limit-down", 0, "Download limit in bytes per second")
	pf.Int64Var(&flags.limitUp, "limit-up", 0, "Upload limit in bytes per second")
	pf.StringVar(&flags.logFile, "log-file", "", "Write error and warning messages to a rotated log file")
	pf.StringVar(&flags.traceDir, "trace-dir", "", "Write protocol traces to this directory")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Report errors and warnings")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&flags.progress, "progress", false, "Show transfer progress")

	cmd.AddCommand(
		newListCmd(),
		newGetCmd(),
		newPutCmd(),
		newAppendCmd(),
		newMgetCmd(),
		newMkdirCmd(),
		newRmdirCmd(),
		newRmCmd(),
		newInfoCmd(),
		newVersionCmd(),
	)
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}
