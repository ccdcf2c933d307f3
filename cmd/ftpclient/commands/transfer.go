package commands

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-file> [local-file]",
		Short: "Download a file",
		Long: `Download a remote file. The local file defaults to the base name of the
remote file in the current directory. It is overwritten, and removed if the
download fails.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := args[0]
			local := path.Base(remote)
			if len(args) == 2 {
				local = args[1]
			}

			client, closeSession, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			if err := client.DownloadFile(local, remote); err != nil {
				return failed(err)
			}
			done(cmd, "downloaded %s to %s", remote, local)
			return nil
		},
	}
}

func newPutCmd() *cobra.Command {
	var mkdirs bool
	cmd := &cobra.Command{
		Use:   "put <local-file> [remote-file]",
		Short: "Upload a file",
		Long: `Upload a local file, overwriting the remote one. The remote file defaults
to the base name of the local file at the server root.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := args[0]
			remote := filepath.Base(local)
			if len(args) == 2 {
				remote = args[1]
			}

			client, closeSession, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			if err := client.UploadFile(local, remote, mkdirs); err != nil {
				return failed(err)
			}
			done(cmd, "uploaded %s to %s", local, remote)
			return nil
		},
	}
	cmd.Flags().BoolVar(&mkdirs, "mkdirs", false, "Create missing remote directories")
	return cmd
}

func newAppendCmd() *cobra.Command {
	var mkdirs bool
	cmd := &cobra.Command{
		Use:   "append <local-file> <offset> <remote-file>",
		Short: "Append part of a file to a remote file",
		Long: `Append the content of a local file, starting at offset, to a remote file.
The offset must lie inside the local file.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid offset %q: %w", args[1], err)
			}

			client, closeSession, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			if err := client.AppendFile(args[0], offset, args[2], mkdirs); err != nil {
				return failed(err)
			}
			done(cmd, "appended %s from offset %d to %s", args[0], offset, args[2])
			return nil
		},
	}
	cmd.Flags().BoolVar(&mkdirs, "mkdirs", false, "Create missing remote directories")
	return cmd
}

func newMgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mget <remote-pattern> [local-dir]",
		Short: "Download the entries matching a pattern",
		Long: `Download every remote entry matching a pattern in its last path segment.
A pattern ending with "*" also downloads matched directories recursively.
The local directory defaults to the current one and must exist.

Not available over SFTP.`,
		Example: `  ftpclient mget 'pictures/*' ./pictures
  ftpclient mget 'logs/*.gz'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := "."
			if len(args) == 2 {
				local = args[1]
			}
			if fi, err := os.Stat(local); err != nil || !fi.IsDir() {
				return fmt.Errorf("%s is not a directory", local)
			}

			client, closeSession, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			if err := client.DownloadWildcard(local, args[0]); err != nil {
				return failed(err)
			}
			done(cmd, "downloaded %s to %s", args[0], local)
			return nil
		},
	}
}
