package main

import (
	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/supervisor"
)

// workerCmd is hidden: operators never invoke it directly. A running
// launcher re-execs the binary onto one of these subcommands
// (queueDispatcher.spawn) once per deferred command — the same
// self-re-exec idiom supervisor.Background uses to daemonize the
// launcher itself, applied one level down to individual worker
// processes.
var workerCmd = &cobra.Command{
	Use:    "__worker",
	Hidden: true,
}

var (
	workerArchiveID int64
	workerProfileID int64
	workerBackupID  int64
)

var workerBasebackupCmd = &cobra.Command{
	Use:  "basebackup",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return supervisor.RunWorker(cmd.Context(), cfg.CatalogPath, "START BASEBACKUP", workerArchiveID,
			basebackupJob(cfg.CatalogPath, workerArchiveID, workerProfileID, logger), logger)
	},
}

var workerStreamCmd = &cobra.Command{
	Use:  "stream",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return supervisor.RunWorker(cmd.Context(), cfg.CatalogPath, "START STREAMING", workerArchiveID,
			streamJob(cfg.CatalogPath, workerArchiveID, logger), logger)
	},
}

var workerRecoveryStreamCmd = &cobra.Command{
	Use:  "recovery-stream",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return supervisor.RunWorker(cmd.Context(), cfg.CatalogPath, "START RECOVERY STREAM", workerArchiveID,
			streamJob(cfg.CatalogPath, workerArchiveID, logger), logger)
	},
}

func init() {
	for _, c := range []*cobra.Command{workerBasebackupCmd, workerStreamCmd, workerRecoveryStreamCmd} {
		c.Flags().Int64Var(&workerArchiveID, "archive-id", 0, "")
		c.Flags().Int64Var(&workerProfileID, "profile-id", 0, "")
		c.Flags().Int64Var(&workerBackupID, "backup-id", 0, "")
	}
	workerCmd.AddCommand(workerBasebackupCmd, workerStreamCmd, workerRecoveryStreamCmd)
	rootCmd.AddCommand(workerCmd)
}
