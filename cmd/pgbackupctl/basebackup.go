package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/dispatch"
)

var basebackupCmd = &cobra.Command{
	Use:   "basebackup",
	Short: "Manage base backups (LIST/DROP/PIN/UNPIN BASEBACKUP, START BASEBACKUP)",
}

var (
	selID     int64
	selLabel  string
	selNewest bool
	selOldest bool
)

// selectorFlags registers the {id|label|newest|oldest} selector common to
// every command that acts on one existing basebackup.
func selectorFlags(c *cobra.Command) {
	c.Flags().Int64Var(&selID, "id", 0, "Select the basebackup by catalog id")
	c.Flags().StringVar(&selLabel, "label", "", "Select the basebackup by label")
	c.Flags().BoolVar(&selNewest, "newest", false, "Select the newest basebackup")
	c.Flags().BoolVar(&selOldest, "oldest", false, "Select the oldest basebackup")
}

func selector() (catalog.BackupSelector, error) {
	n := 0
	if selID > 0 {
		n++
	}
	if selLabel != "" {
		n++
	}
	if selNewest {
		n++
	}
	if selOldest {
		n++
	}
	if n != 1 {
		return catalog.BackupSelector{}, fmt.Errorf("exactly one of --id, --label, --newest, --oldest is required")
	}
	return catalog.BackupSelector{ID: selID, Label: selLabel, Newest: selNewest, Oldest: selOldest}, nil
}

var basebackupListCmd = &cobra.Command{
	Use:   "list ARCHIVE",
	Short: "List basebackups in an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagListBasebackups, ArchiveName: args[0]})
	},
}

var basebackupDropCmd = &cobra.Command{
	Use:   "drop ARCHIVE",
	Short: "Drop a basebackup and its filesystem entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selector()
		if err != nil {
			return err
		}
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagDropBasebackup, ArchiveName: args[0], BackupSelector: sel})
	},
}

var basebackupPinCmd = &cobra.Command{
	Use:   "pin ARCHIVE",
	Short: "Pin a basebackup against retention",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selector()
		if err != nil {
			return err
		}
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagPin, ArchiveName: args[0], BackupSelector: sel})
	},
}

var basebackupUnpinCmd = &cobra.Command{
	Use:   "unpin ARCHIVE",
	Short: "Unpin a basebackup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selector()
		if err != nil {
			return err
		}
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagUnpin, ArchiveName: args[0], BackupSelector: sel})
	},
}

func init() {
	for _, c := range []*cobra.Command{basebackupDropCmd, basebackupPinCmd, basebackupUnpinCmd} {
		selectorFlags(c)
	}
	basebackupCmd.AddCommand(basebackupListCmd, basebackupDropCmd, basebackupPinCmd, basebackupUnpinCmd, basebackupStartCmd)
	rootCmd.AddCommand(basebackupCmd)
}
