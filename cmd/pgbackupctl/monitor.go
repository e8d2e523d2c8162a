package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/monitor"
	"github.com/jfoltran/pgbackupctl/internal/shm"
	"github.com/jfoltran/pgbackupctl/internal/tui"
)

var monitorRemoteURL string

// monitorPollInterval is how often a local monitor re-reads the worker
// segment; a remote monitor instead streams whatever its Hub broadcasts.
const monitorPollInterval = 500 * time.Millisecond

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Render a live view of the launcher's worker slots",
	Long: `monitor renders a bubbletea dashboard of the launcher's occupied
worker slots: which archive each worker serves, its command tag, elapsed
time, and any WAL/basebackup streamer children.

With --remote, it connects to a status socket exposed by a launcher on
another host instead of attaching to the local worker segment directly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if monitorRemoteURL != "" {
			stream, err := monitor.DialStream(cmd.Context(), monitorRemoteURL)
			if err != nil {
				return fmt.Errorf("dial monitor socket: %w", err)
			}
			return tui.Run(stream)
		}
		return runLocalMonitor(cmd.Context())
	},
}

func runLocalMonitor(ctx context.Context) error {
	seg, err := shm.OpenWorkerSegment(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("attach worker segment (is the launcher running?): %w", err)
	}
	defer seg.Close() //nolint:errcheck

	collector := monitor.NewCollector(seg, cat, logger)
	defer collector.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go collector.Run(runCtx, monitorPollInterval)

	return tui.Run(collector.Subscribe())
}

func init() {
	monitorCmd.Flags().StringVar(&monitorRemoteURL, "remote", "", "ws:// or wss:// URL of a remote launcher's status socket")
	rootCmd.AddCommand(monitorCmd)
}
