package main

import (
	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/dispatch"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage archives (CREATE/DROP/ALTER/LIST ARCHIVE)",
}

var (
	archiveDirectory  string
	archiveCompressed bool
)

var archiveCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{
			Tag: dispatch.TagCreateArchive,
			Archive: &catalog.ArchiveDescr{
				Name:        args[0],
				Directory:   archiveDirectory,
				Compression: archiveCompressed,
			},
		})
	},
}

var archiveDropCmd = &cobra.Command{
	Use:   "drop NAME",
	Short: "Drop an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagDropArchive, ArchiveName: args[0]})
	},
}

var archiveAlterCmd = &cobra.Command{
	Use:   "alter NAME",
	Short: "Alter an archive's directory or compression setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := &catalog.ArchiveDescr{Name: args[0]}
		if cmd.Flags().Changed("directory") {
			d.SetDirectory(archiveDirectory)
		}
		if cmd.Flags().Changed("compression") {
			d.SetCompression(archiveCompressed)
		}
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagAlterArchive, Archive: d})
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagListArchive})
	},
}

var archiveVerifyCmd = &cobra.Command{
	Use:   "verify NAME",
	Short: "Re-stamp an archive's PG_BACKUP_CTL_INFO signature file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagVerifyArchive, ArchiveName: args[0]})
	},
}

func init() {
	archiveCreateCmd.Flags().StringVar(&archiveDirectory, "directory", "", "Archive root directory")
	archiveCreateCmd.Flags().BoolVar(&archiveCompressed, "compression", false, "Compress WAL segments as they arrive")
	archiveCreateCmd.MarkFlagRequired("directory") //nolint:errcheck

	archiveAlterCmd.Flags().StringVar(&archiveDirectory, "directory", "", "New archive root directory")
	archiveAlterCmd.Flags().BoolVar(&archiveCompressed, "compression", false, "New compression setting")

	archiveCmd.AddCommand(archiveCreateCmd, archiveDropCmd, archiveAlterCmd, archiveListCmd, archiveVerifyCmd)
	rootCmd.AddCommand(archiveCmd)
}
