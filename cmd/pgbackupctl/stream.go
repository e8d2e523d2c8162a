package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/supervisor"
)

// enqueue resolves archiveName (and, when non-empty, profileName) to
// catalog ids and posts cmd to the running launcher's message queue.
// These are the four command-grammar verbs internal/dispatch does not
// implement: they need a live worker process, not a synchronous catalog
// call, so the front end hands them off to whatever launcher already
// owns this catalog.
func enqueue(ctx context.Context, cmd queueCmd, archiveName, profileName string) error {
	archive, err := cat.GetArchive(ctx, archiveName)
	if err != nil {
		return err
	}
	var profileID int64
	if profileName != "" {
		profile, err := cat.GetBackupProfile(ctx, profileName)
		if err != nil {
			return err
		}
		profileID = profile.ID
	}

	q, err := supervisor.DialQueue(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("dial launcher queue (is the launcher running? see `pgbackupctl launcher start`): %w", err)
	}
	defer q.Close() //nolint:errcheck

	msg := queueMsg{Cmd: cmd, ArchiveID: archive.ID, ProfileID: profileID}
	return q.TrySend(msg.encode())
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Manage WAL streaming (START/STOP STREAMING, START RECOVERY STREAM)",
}

var streamProfileName string

var streamStartCmd = &cobra.Command{
	Use:   "start ARCHIVE",
	Short: "Request the launcher start WAL streaming for an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := enqueue(cmd.Context(), queueCmdStartStreaming, args[0], ""); err != nil {
			return err
		}
		out.printMessage(fmt.Sprintf("streaming requested for archive %q", args[0]))
		return nil
	},
}

var streamStopCmd = &cobra.Command{
	Use:   "stop ARCHIVE",
	Short: "Request the launcher stop WAL streaming for an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := enqueue(cmd.Context(), queueCmdStopStreaming, args[0], ""); err != nil {
			return err
		}
		out.printMessage(fmt.Sprintf("stop requested for archive %q", args[0]))
		return nil
	},
}

var streamRecoveryStartCmd = &cobra.Command{
	Use:   "recovery-start ARCHIVE",
	Short: "Request the launcher start a recovery stream for an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := enqueue(cmd.Context(), queueCmdStartRecoveryStream, args[0], ""); err != nil {
			return err
		}
		out.printMessage(fmt.Sprintf("recovery stream requested for archive %q", args[0]))
		return nil
	},
}

var basebackupStartCmd = &cobra.Command{
	Use:   "start ARCHIVE",
	Short: "Request the launcher start a basebackup for an archive (START BASEBACKUP)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := enqueue(cmd.Context(), queueCmdStartBasebackup, args[0], streamProfileName); err != nil {
			return err
		}
		out.printMessage(fmt.Sprintf("basebackup requested for archive %q", args[0]))
		return nil
	},
}

func init() {
	basebackupStartCmd.Flags().StringVar(&streamProfileName, "profile", "", "Backup profile to use")

	streamCmd.AddCommand(streamStartCmd, streamStopCmd, streamRecoveryStartCmd)
	rootCmd.AddCommand(streamCmd)
}
