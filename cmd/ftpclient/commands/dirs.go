package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var long, table bool
	cmd := &cobra.Command{
		Use:     "ls [remote-dir]",
		Aliases: []string{"list"},
		Short:   "List a remote directory",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}

			client, closeSession, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			listing, err := client.List(dir, !long && !table)
			if err != nil {
				return failed(err)
			}
			if table {
				printListingTable(cmd, listing)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), listing)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Detailed listing")
	cmd.Flags().BoolVarP(&table, "table", "t", false, "Detailed listing as a table")
	return cmd
}

// printListingTable renders "ls -l" style lines as a table.
func printListingTable(cmd *cobra.Command, listing string) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Type", "Size", "Modified", "Name"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, line := range strings.Split(strings.TrimRight(listing, "\n"), "\n") {
		// mode links owner group size month day time-or-year name...
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}
		kind := "file"
		switch fields[0][0] {
		case 'd':
			kind = "dir"
		case 'l':
			kind = "link"
		}
		name := strings.Join(fields[8:], " ")
		table.Append([]string{kind, fields[4], strings.Join(fields[5:8], " "), name})
	}
	table.Render()
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <remote-dir>",
		Short: "Create a remote directory",
		Long: `Create a remote directory. Over FTP, FTPS and FTPES missing parent
directories are created too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeSession, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			if err := client.CreateDir(args[0]); err != nil {
				return failed(err)
			}
			done(cmd, "created %s", args[0])
			return nil
		},
	}
}

func newRmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <remote-dir>",
		Short: "Remove an empty remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeSession, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			if err := client.RemoveDir(args[0]); err != nil {
				return failed(err)
			}
			done(cmd, "removed %s", args[0])
			return nil
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <remote-file>",
		Short: "Remove a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeSession, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			if err := client.RemoveFile(args[0]); err != nil {
				return failed(err)
			}
			done(cmd, "removed %s", args[0])
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <remote-file>",
		Short: "Show the size and modification time of a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeSession, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			info, err := client.Info(args[0])
			if err != nil {
				return failed(err)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetAutoWrapText(false)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			table.SetCenterSeparator("")
			table.SetColumnSeparator(":")
			table.SetRowSeparator("")
			table.SetTablePadding("  ")
			table.SetNoWhiteSpace(true)
			table.Append([]string{"Path", args[0]})
			table.Append([]string{"Size", fmt.Sprintf("%d", info.Size)})
			table.Append([]string{"Modified", info.ModTime.UTC().Format(time.RFC3339)})
			table.Render()
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ftpclient %s (commit %s, built %s)\n", Version, Commit, Date)
		},
	}
}
